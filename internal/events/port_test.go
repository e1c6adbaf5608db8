package events

import "testing"

func TestPort_ZeroValueDropsEvents(t *testing.T) {
	var p Port
	p.EmitRefresh()
	p.EmitFilter(Filter{})
	p.EmitSelectEntry(SelectEntry{})
	p.EmitRemoteKeyChanged(RemoteKeyChanged{})
}

func TestPort_NilPointerDropsEvents(t *testing.T) {
	var p *Port
	p.EmitRefresh()
	p.EmitFilter(Filter{})
}

func TestPort_InvokesRegisteredHandlers(t *testing.T) {
	var refreshed bool
	var gotFilter Filter
	var gotKeyChanged RemoteKeyChanged

	p := &Port{
		OnRefresh:          func() { refreshed = true },
		OnFilter:           func(f Filter) { gotFilter = f },
		OnRemoteKeyChanged: func(e RemoteKeyChanged) { gotKeyChanged = e },
	}

	p.EmitRefresh()
	p.EmitFilter(Filter{Sort: "name"})
	p.EmitRemoteKeyChanged(RemoteKeyChanged{FileID: "f1"})

	if !refreshed {
		t.Fatalf("expected OnRefresh to be invoked")
	}
	if gotFilter.Sort != "name" {
		t.Fatalf("expected filter to be passed through, got %+v", gotFilter)
	}
	if gotKeyChanged.FileID != "f1" {
		t.Fatalf("expected remote-key-changed file id f1, got %+v", gotKeyChanged)
	}
}
