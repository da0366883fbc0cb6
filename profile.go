package main

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Profiling support is derived from https://github.com/zeromicro/go-zero
// @copyright original authors.

const (
	// defaultMemProfileRate is the memory profiling rate while a session
	// runs. See also http://golang.org/pkg/runtime/#pkg-variables
	defaultMemProfileRate = 4096

	timeFormat       = "20060102_150405"
	goroutineProfile = "goroutine"
	debugLevel       = 2
)

// Profiler represents an active profiling session, toggled via SIGUSR2.
// The gateway is I/O bound, so the session covers cpu, heap, block and
// execution trace.
type Profiler struct {
	dataDir string

	// closers holds cleanup functions that run after each profile
	closers []func()

	// stopped records if a call to Stop has been made
	stopped uint32
}

// StartProfiler starts a new profiling session. The caller should call
// Stop on the returned value to flush the collected data.
func StartProfiler(dataDir string) *Profiler {
	prof := &Profiler{
		dataDir: dataDir,
	}

	prof.startCpuProfile()
	prof.startMemProfile()
	prof.startBlockProfile()
	prof.startTraceProfile()

	return prof
}

// Stop stops the profile and flushes any unwritten data.
func (p *Profiler) Stop() {
	if !atomic.CompareAndSwapUint32(&p.stopped, 0, 1) {
		// someone has already called close
		return
	}
	for _, closer := range p.closers {
		closer()
	}
}

func (p *Profiler) startCpuProfile() {
	fn := p.createDumpFile("cpu")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("pprof: could not create cpu profile %q: %v", fn, err)
		return
	}

	glog.Infof("pprof: cpu profiling enabled, %s", fn)
	pprof.StartCPUProfile(f)
	p.closers = append(p.closers, func() {
		pprof.StopCPUProfile()
		f.Close()
		glog.Infof("pprof: cpu profiling disabled, %s", fn)
	})
}

func (p *Profiler) startMemProfile() {
	fn := p.createDumpFile("mem")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("pprof: could not create memory profile %q: %v", fn, err)
		return
	}

	old := runtime.MemProfileRate
	runtime.MemProfileRate = defaultMemProfileRate
	glog.Infof("pprof: memory profiling enabled (rate %d), %s", runtime.MemProfileRate, fn)
	p.closers = append(p.closers, func() {
		pprof.Lookup("heap").WriteTo(f, 0)
		f.Close()
		runtime.MemProfileRate = old
		glog.Infof("pprof: memory profiling disabled, %s", fn)
	})
}

func (p *Profiler) startBlockProfile() {
	fn := p.createDumpFile("block")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("pprof: could not create block profile %q: %v", fn, err)
		return
	}

	runtime.SetBlockProfileRate(1)
	glog.Infof("pprof: block profiling enabled, %s", fn)
	p.closers = append(p.closers, func() {
		pprof.Lookup("block").WriteTo(f, 0)
		f.Close()
		runtime.SetBlockProfileRate(0)
		glog.Infof("pprof: block profiling disabled, %s", fn)
	})
}

func (p *Profiler) startTraceProfile() {
	fn := p.createDumpFile("trace")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("pprof: could not create trace output file %q: %v", fn, err)
		return
	}

	if err := trace.Start(f); err != nil {
		glog.Errorf("pprof: could not start trace: %v", err)
		return
	}

	glog.Infof("pprof: trace enabled, %s", fn)
	p.closers = append(p.closers, func() {
		trace.Stop()
		glog.Infof("pprof: trace disabled, %s", fn)
	})
}

func (p *Profiler) createDumpFile(kind string) string {
	return path.Join(p.dataDir, fmt.Sprintf("%s-%s.pprof", kind, time.Now().Format(timeFormat)))
}

func (p *Profiler) dumpGoroutines() {
	dumpFile := path.Join(p.dataDir, fmt.Sprintf("goroutines-%s.dump", time.Now().Format(timeFormat)))
	glog.Infof("Got dump goroutine signal, dumping goroutine profile to %s", dumpFile)
	if f, err := os.Create(dumpFile); err != nil {
		glog.Errorf("Failed to dump goroutine profile, error: %v", err)
	} else {
		defer f.Close()
		if err := pprof.Lookup(goroutineProfile).WriteTo(f, debugLevel); err != nil {
			glog.Errorf("Failed to write goroutine profile to %s, error: %v", dumpFile, err)
		}
	}
}
