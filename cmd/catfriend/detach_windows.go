//go:build windows

package main

import "syscall"

// detachAttr detaches the daemon child from the parent's console.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
