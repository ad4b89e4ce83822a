//go:build profiling

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/grafana/pyroscope-go"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// profiler writes profiles for one run into dir, named <kind>_<label>.
type profiler struct {
	dir   string
	label string
}

func (p *profiler) create(kind, ext string) (*os.File, error) {
	return os.Create(filepath.Join(p.dir, kind+"_"+p.label+ext))
}

// start begins a profile of the given kind and returns the function that
// finishes it.
func (p *profiler) start(kind profileKind) (func() error, error) {
	if kind == profileNone {
		return func() error { return nil }, nil
	}

	ext := ".pprof"
	if kind == profileTrace {
		ext = ".out"
	}
	f, err := p.create(string(kind), ext)
	if err != nil {
		return nil, err
	}

	var stop func() error
	switch kind {
	case profileCPU:
		err = pprof.StartCPUProfile(f)
		stop = func() error { pprof.StopCPUProfile(); return nil }
	case profileFG:
		stop = fgprof.Start(f, fgprof.FormatPprof)
	case profileTrace:
		err = trace.Start(f)
		stop = func() error { trace.Stop(); return nil }
	default:
		err = fmt.Errorf("unknown profile type: %s", kind)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() error {
		return errors.Join(stop(), f.Close())
	}, nil
}

// snapshot writes the heap and allocs profiles after a forced GC.
func (p *profiler) snapshot() error {
	runtime.GC()
	for _, name := range []string{"heap", "allocs"} {
		f, err := p.create(name, ".pprof")
		if err != nil {
			return err
		}
		err = pprof.Lookup(name).WriteTo(f, 0)
		if err = errors.Join(err, f.Close()); err != nil {
			return fmt.Errorf("write %s profile: %w", name, err)
		}
	}
	return nil
}

// streamTo starts continuous profiling against a Pyroscope server.
// Credentials come from PYROSCOPE_BASIC_AUTH_USER and _PASSWORD.
func streamTo(addr string, tags map[string]string) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName:   "imgship-profile",
		ServerAddress:     addr,
		BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
		BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
		UploadRate:        5 * time.Second,
		Logger:            pyroscope.StandardLogger,
		Tags:              tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}
