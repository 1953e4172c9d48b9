//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SetProcGroup puts cmd in its own process group on Windows, mirroring the
// Unix build's intent via CREATE_NEW_PROCESS_GROUP, adapted from
// vango-go-vango's internal/dev/process_windows.go job-object idiom.
func SetProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// jobObject assigns pid to a Windows job object configured to kill every
// process in the job once the job handle is closed, so a mapper crash
// still tears down the browser it launched.
func jobObject(pid int) (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{}
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return 0, err
	}

	handle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		windows.CloseHandle(job)
		return 0, err
	}
	defer windows.CloseHandle(handle)

	if err := windows.AssignProcessToJobObject(job, handle); err != nil {
		windows.CloseHandle(job)
		return 0, err
	}
	return job, nil
}

// KillProcessGroup assigns pid to a fresh kill-on-close job object
// (jobObject) and closes it at once, which terminates every process in it.
func KillProcessGroup(pid int) {
	job, err := jobObject(pid)
	if err != nil {
		return
	}
	windows.CloseHandle(job)
}

// WaitForProcessesDead polls until every pid has exited or timeout elapses.
func WaitForProcessesDead(pids []int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		allDead := true
		for _, pid := range pids {
			h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
			if err == nil {
				windows.CloseHandle(h)
				allDead = false
				break
			}
		}
		if allDead {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
