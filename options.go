package vctree

// Options configures a Store.
type Options struct {
	// HistoryLimit bounds the number of undo entries a History keeps.
	// Zero keeps everything.
	HistoryLimit int

	// MaxDeferredPasses bounds how deeply replays of buffered mutations may
	// nest. A listener that answers every change with another change to the
	// same node would otherwise recurse forever; past this depth the
	// buffered mutations are dropped with a warning.
	MaxDeferredPasses int
}

// DefaultOptions returns the options used by NewNode and a zero Options.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:      100,
		MaxDeferredPasses: 64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HistoryLimit < 0 {
		o.HistoryLimit = 0
	}
	if o.MaxDeferredPasses <= 0 {
		o.MaxDeferredPasses = d.MaxDeferredPasses
	}
	return o
}
