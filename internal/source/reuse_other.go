//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package source

import "syscall"

func reuseAddrControl(_, _ string, _ syscall.RawConn) error { return nil }
