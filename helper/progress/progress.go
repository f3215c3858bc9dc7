package progress

import (
	"sync"
)

type SyncType string

const (
	SyncIngest SyncType = "ingest"
	SyncSeries SyncType = "series"
)

// Progression defines the status of a long running walk over
// checkpoints or digests
type Progression struct {
	// SyncType is the kind of walk
	SyncType SyncType

	// RunID identifies the run in the progress log
	RunID string

	// Starting is the first item of the walk
	Starting uint64

	// Current is the last item completed
	Current uint64

	// Highest is the target of the walk
	Highest uint64

	// Done counts completed items, which may finish out of order
	Done uint64
}

// Percent is the completed share of the walk
func (p *Progression) Percent() float64 {
	if p.Highest < p.Starting {
		return 100
	}

	total := p.Highest - p.Starting + 1

	return float64(p.Done) * 100 / float64(total)
}

type ProgressionWrapper struct {
	// progression is a reference to the ongoing walk.
	// Nil if no walk is currently in progress
	progression *Progression

	// stopCh is the channel for receiving stop signals
	// in progression tracking
	stopCh chan struct{}

	lock sync.RWMutex

	syncType SyncType
}

func NewProgressionWrapper(syncType SyncType) *ProgressionWrapper {
	return &ProgressionWrapper{
		progression: nil,
		stopCh:      make(chan struct{}),
		syncType:    syncType,
	}
}

// StartProgression initializes the progression tracking. Completed items
// are read from doneCh until StopProgression.
func (pw *ProgressionWrapper) StartProgression(
	runID string,
	starting uint64,
	highest uint64,
	doneCh <-chan uint64,
) {
	pw.lock.Lock()
	defer pw.lock.Unlock()

	var current uint64

	if starting > 0 {
		current = starting - 1
	}

	pw.progression = &Progression{
		SyncType: pw.syncType,
		RunID:    runID,
		Starting: starting,
		Current:  current,
		Highest:  highest,
	}

	go pw.RunUpdateLoop(doneCh)
}

// RunUpdateLoop records completed items until stopped
func (pw *ProgressionWrapper) RunUpdateLoop(doneCh <-chan uint64) {
	for {
		select {
		case item, ok := <-doneCh:
			if !ok {
				<-pw.stopCh

				return
			}

			pw.UpdateCurrentProgression(item)
		case <-pw.stopCh:
			return
		}
	}
}

// StopProgression stops the progression tracking
func (pw *ProgressionWrapper) StopProgression() {
	pw.stopCh <- struct{}{}

	pw.lock.Lock()
	defer pw.lock.Unlock()

	pw.progression = nil
}

// UpdateCurrentProgression marks item as completed
func (pw *ProgressionWrapper) UpdateCurrentProgression(item uint64) {
	pw.lock.Lock()
	defer pw.lock.Unlock()

	if pw.progression == nil {
		return
	}

	pw.progression.Done++

	if item > pw.progression.Current {
		pw.progression.Current = item
	}
}

// GetProgression returns a copy of the latest progression
func (pw *ProgressionWrapper) GetProgression() *Progression {
	pw.lock.RLock()
	defer pw.lock.RUnlock()

	if pw.progression == nil {
		return nil
	}

	p := *pw.progression

	return &p
}
