//go:build windows

package winapi

import (
	"fmt"
	"runtime"
)

// Windows ties a debuggee to the OS thread that created it with a debug
// flag: WaitForDebugEvent and ContinueDebugEvent fail from any other thread.
// debugThread pins one OS thread and runs submitted calls on it, so the rest
// of the program can stay on whatever goroutine it likes.

type callResp struct {
	v   any
	err error
}

type callReq struct {
	run  func() (any, error)
	resp chan callResp
}

type debugThread struct {
	req  chan callReq
	done chan struct{}
}

func newDebugThread() *debugThread {
	d := &debugThread{
		req:  make(chan callReq),
		done: make(chan struct{}),
	}

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(d.done)

		for q := range d.req {
			var out any
			var err error
			func() {
				defer func() {
					if x := recover(); x != nil {
						err = fmt.Errorf("%v", x)
					}
				}()
				out, err = q.run()
			}()
			q.resp <- callResp{out, err}
			close(q.resp)
		}
	}()

	return d
}

func (d *debugThread) close() {
	close(d.req)
	<-d.done
}

func runOn[T any](d *debugThread, fn func() (T, error)) (T, error) {
	resp := make(chan callResp, 1)
	d.req <- callReq{
		run:  func() (any, error) { v, err := fn(); return v, err },
		resp: resp,
	}
	r := <-resp
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.v.(T), nil
}

func runOnErr(d *debugThread, fn func() error) error {
	_, err := runOn[struct{}](d, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
