package syncengine

import (
	"context"

	"github.com/grinsted/keeweb/internal/backend"
)

// scriptedBackend is a controllable backend.Backend + StatCapable double
// for exercising the sync state machine's branches deterministically.
type scriptedBackend struct {
	statResults []backend.Stat
	statErrs    []error
	statCalls   int

	loadResults []loadResult
	loadCalls   int

	saveResults []saveResult
	saveCalls   int
}

type loadResult struct {
	data []byte
	stat backend.Stat
	err  error
}

type saveResult struct {
	stat backend.Stat
	err  error
}

func (b *scriptedBackend) Stat(_ context.Context, _ string, _ map[string]string) (backend.Stat, error) {
	i := b.statCalls
	b.statCalls++
	if i < len(b.statResults) {
		var err error
		if i < len(b.statErrs) {
			err = b.statErrs[i]
		}
		return b.statResults[i], err
	}
	last := len(b.statResults) - 1
	var err error
	if last < len(b.statErrs) {
		err = b.statErrs[last]
	}
	return b.statResults[last], err
}

func (b *scriptedBackend) Load(_ context.Context, _ string, _ map[string]string) ([]byte, backend.Stat, error) {
	i := b.loadCalls
	b.loadCalls++
	if i >= len(b.loadResults) {
		i = len(b.loadResults) - 1
	}
	r := b.loadResults[i]
	return r.data, r.stat, r.err
}

func (b *scriptedBackend) Save(_ context.Context, path string, _ map[string]string, _ []byte, _ string) (backend.Stat, error) {
	i := b.saveCalls
	b.saveCalls++
	if i >= len(b.saveResults) {
		i = len(b.saveResults) - 1
	}
	r := b.saveResults[i]
	if r.stat.Path == "" {
		r.stat.Path = ""
	}
	_ = path
	return r.stat, r.err
}
