package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/CZERTAINLY/massscan/internal/model"
)

const (
	// EnvIPCFD tells the engine which file descriptor carries the messages.
	EnvIPCFD = "MASS_SCANNER_IPC_FD"
	// EnvSharedData is shared run state of the engine, it must never leak
	// into a child process.
	EnvSharedData  = "MASS_SCANNER_DATA"
	EnvRunning     = "RUNNING_FROM_MASS_SCANNER"
	EnvStoragePath = "MASS_SCANNER_STORAGE_PATH"

	ipcFD = 3

	defaultWaitDelay = 2 * time.Second
)

// Command describes how to start the scan engine.
type Command struct {
	Path       string
	Args       []string // prepended to the job arguments, e.g. cli.js
	Dir        string
	Env        []string // appended to the filtered parent environment
	ResultsDir string
	Timeout    time.Duration // per job, 0 means no timeout
	WaitDelay  time.Duration
}

// Args returns the engine arguments of a job. The result depends only on
// the job, so a job always runs with the same arguments.
func Args(job model.ScanJob) []string {
	o := job.Options
	args := []string{
		"-c", job.ScanType,
		"-u", job.URL,
		"-k", job.Name + ":" + job.Email,
		"-i", o.FileTypes,
	}
	if !o.IncludeScreenshots {
		args = append(args, "-a", "none")
	}
	if !o.IncludeSubdomains && job.ScanType == model.ScanTypeWebsite {
		args = append(args, "-s", "same-hostname")
	}
	if o.CustomDevice != "" {
		args = append(args, "-d", o.CustomDevice)
	}
	if o.ViewportWidth > 0 {
		args = append(args, "-w", strconv.Itoa(o.ViewportWidth))
	}
	if job.MaxPages != "" {
		args = append(args, "-p", job.MaxPages)
	}
	if !o.HeadlessMode {
		args = append(args, "-h", "no")
	}
	if o.Browser != "" {
		args = append(args, "-b", o.Browser)
	}
	if o.ExportDir != "" {
		args = append(args, "-e", o.ExportDir)
	}
	// each engine process crawls with a single worker, the parallelism
	// comes from running several processes
	if job.MaxConcurrency != "" {
		args = append(args, "-t", "1")
	}
	if o.FollowRobots {
		args = append(args, "-r", "yes")
	}
	if o.Metadata != "" {
		args = append(args, "-q", o.Metadata)
	}
	return args
}

func (c Command) argv(job model.ScanJob) []string {
	ret := make([]string, 0, len(c.Args)+24)
	ret = append(ret, c.Args...)
	return append(ret, Args(job)...)
}

// environ filters the parent environment and adds the variables the engine
// expects when started by the mass scanner.
func environ(parent []string, resultsDir string, extra []string) []string {
	drop := []string{EnvSharedData, EnvRunning, EnvStoragePath, EnvIPCFD}
	ret := make([]string, 0, len(parent)+len(extra)+3)
	for _, kv := range parent {
		name, _, _ := strings.Cut(kv, "=")
		if contains(drop, name) {
			continue
		}
		ret = append(ret, kv)
	}
	ret = append(ret,
		EnvRunning+"=true",
		EnvIPCFD+"="+strconv.Itoa(ipcFD),
	)
	if resultsDir != "" {
		ret = append(ret, EnvStoragePath+"="+resultsDir)
	}
	return append(ret, extra...)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
