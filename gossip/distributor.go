package gossip

import (
	"context"
	"sync"
	"time"

	"qinfinity/clockid"

	"golang.org/x/time/rate"
)

const defaultMaxBackoff = 3

// Distributor dispatches jobs across a registered node set following the
// policy in spec §4.4: prefer the least-loaded eligible node; when none is
// eligible, penalize a pseudo-random victim's backoff-level and reannounce
// after a delay proportional to it, unless the victim's backoff has
// already exceeded the configured maximum, in which case the job is lost.
type Distributor struct {
	mu         sync.Mutex
	nodes      map[string]*nodeState
	order      []string
	maxBackoff int
	rng        clockid.Source
	baseDelay  time.Duration

	lostJobs  int
	totalJobs int
}

// NewDistributor constructs a Distributor. rng drives pseudo-random victim
// selection; baseDelay scales the reannounce delay (delay = baseDelay *
// backoff-level).
func NewDistributor(rng clockid.Source, baseDelay time.Duration) *Distributor {
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}
	return &Distributor{
		nodes:      make(map[string]*nodeState),
		maxBackoff: defaultMaxBackoff,
		rng:        rng,
		baseDelay:  baseDelay,
	}
}

// SetMaxBackoff overrides the default max-backoff threshold (3).
func (d *Distributor) SetMaxBackoff(max int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxBackoff = max
}

// RegisterNode adds a node to the distributor's pool, starting idle with
// zero jobs and zero backoff.
func (d *Distributor) RegisterNode(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.nodes[id]; exists {
		return
	}
	d.nodes[id] = &nodeState{}
	d.order = append(d.order, id)
}

// Dispatch assigns every job to a node, simulating processing for
// simulatedWork before the node becomes eligible again, and blocks until
// every job has either been assigned or lost.
func (d *Distributor) Dispatch(ctx context.Context, jobs []Job, simulatedWork time.Duration) Report {
	var wg sync.WaitGroup
	for _, job := range jobs {
		d.mu.Lock()
		d.totalJobs++
		d.mu.Unlock()
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			d.assignOne(ctx, j, simulatedWork)
		}(job)
	}
	wg.Wait()
	return d.report()
}

func (d *Distributor) assignOne(ctx context.Context, job Job, simulatedWork time.Duration) {
	for {
		if ctx.Err() != nil {
			d.recordLoss()
			return
		}

		node, ok := d.pickLeastLoadedEligible()
		if ok {
			node.mu.Lock()
			node.processing = true
			node.jobCount++
			if node.backoffLevel > 0 {
				node.backoffLevel--
			}
			node.mu.Unlock()

			if simulatedWork > 0 {
				timer := time.NewTimer(simulatedWork)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}

			node.mu.Lock()
			node.processing = false
			node.mu.Unlock()
			return
		}

		_, level, ok := d.penalizeRandomVictim()
		if !ok {
			d.recordLoss()
			return
		}
		if level > d.maxBackoff {
			d.recordLoss()
			return
		}

		delay := d.baseDelay * time.Duration(level)
		limiter := rate.NewLimiter(rate.Every(delay), 1)
		// A new limiter starts with a full bucket; spend that token so
		// WaitN blocks for the whole delay.
		limiter.Allow()
		if err := limiter.WaitN(ctx, 1); err != nil {
			d.recordLoss()
			return
		}
	}
}

func (d *Distributor) recordLoss() {
	d.mu.Lock()
	d.lostJobs++
	d.mu.Unlock()
}

// pickLeastLoadedEligible returns the eligible (not currently processing)
// node with the fewest assigned jobs so far, breaking ties by registration
// order.
func (d *Distributor) pickLeastLoadedEligible() (*nodeState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var best *nodeState
	bestCount := -1
	for _, id := range d.order {
		n := d.nodes[id]
		processing, jobCount, _ := n.snapshot()
		if processing {
			continue
		}
		if best == nil || jobCount < bestCount {
			best = n
			bestCount = jobCount
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// penalizeRandomVictim increments a pseudo-randomly chosen node's
// backoff-level and returns the node and its new level.
func (d *Distributor) penalizeRandomVictim() (*nodeState, int, bool) {
	d.mu.Lock()
	if len(d.order) == 0 {
		d.mu.Unlock()
		return nil, 0, false
	}
	idx := d.rng.IntN(len(d.order))
	victim := d.nodes[d.order[idx]]
	d.mu.Unlock()

	victim.mu.Lock()
	victim.backoffLevel++
	level := victim.backoffLevel
	victim.mu.Unlock()
	return victim, level, true
}

// Report is the distributor's spec §4.4-mandated metric set.
type Report struct {
	JainFairnessIndex  float64
	LostJobs           int
	TotalJobs          int
	LostJobsRatio      float64
	PassesLossBudget   bool // lost-jobs ratio <= 1%
	StarvedNodes       []string
	PerNodeJobCount    map[string]int
	PerNodeBackoff     map[string]int
	MaxBackoffBreached []string
}

func (d *Distributor) report() Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := make(map[string]int, len(d.order))
	backoffs := make(map[string]int, len(d.order))
	var total float64
	var totalSquares float64
	for _, id := range d.order {
		_, jobCount, backoffLevel := d.nodes[id].snapshot()
		counts[id] = jobCount
		backoffs[id] = backoffLevel
		total += float64(jobCount)
		totalSquares += float64(jobCount) * float64(jobCount)
	}

	n := float64(len(d.order))
	jain := 1.0
	if n > 0 && totalSquares > 0 {
		jain = (total * total) / (n * totalSquares)
	}

	var average float64
	if n > 0 {
		average = total / n
	}
	var starved []string
	var breached []string
	for _, id := range d.order {
		if float64(counts[id]) < 0.5*average {
			starved = append(starved, id)
		}
		if backoffs[id] > d.maxBackoff {
			breached = append(breached, id)
		}
	}

	lossRatio := 0.0
	if d.totalJobs > 0 {
		lossRatio = float64(d.lostJobs) / float64(d.totalJobs)
	}

	return Report{
		JainFairnessIndex:  jain,
		LostJobs:           d.lostJobs,
		TotalJobs:          d.totalJobs,
		LostJobsRatio:      lossRatio,
		PassesLossBudget:   lossRatio <= 0.01,
		StarvedNodes:       starved,
		PerNodeJobCount:    counts,
		PerNodeBackoff:     backoffs,
		MaxBackoffBreached: breached,
	}
}
