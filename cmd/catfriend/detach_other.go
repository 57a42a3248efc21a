//go:build !windows

package main

import "syscall"

// detachAttr puts the daemon child in its own session so it survives
// the invoking terminal.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
