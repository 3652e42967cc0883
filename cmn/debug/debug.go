// Package debug provides lightweight invariant assertions shared by every
// package in the module. Assertions panic instead of returning an error:
// they guard conditions the rest of the code treats as structurally
// impossible (a locked mutex released twice, a dense sequence with a hole),
// not conditions a caller can trigger through the public API.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package debug

import (
	"fmt"

	"github.com/golang/glog"
)

// Assert panics if cond is false. The optional args are formatted with
// fmt.Sprint and included in the panic message.
func Assert(cond bool, a ...interface{}) {
	if !cond {
		panicf(a...)
	}
}

// Assertf is Assert with a format string.
func Assertf(cond bool, f string, a ...interface{}) {
	if !cond {
		panicf(fmt.Sprintf(f, a...))
	}
}

// AssertNoErr panics if err is non-nil. Use only where the caller has
// already established the error cannot occur (e.g. a hash write that
// never returns an error per the io.Writer contract).
func AssertNoErr(err error) {
	if err != nil {
		panicf(err)
	}
}

func panicf(a ...interface{}) {
	msg := "assertion failed"
	if len(a) > 0 {
		msg += ": " + fmt.Sprint(a...)
	}
	glog.Error(msg)
	panic(msg)
}
