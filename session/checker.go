package session

import "sync"

// checkJob is one unit of work for the checker thread: verify (from
// fast-resume data if present, else a full scan) a single torrent's
// on-disk pieces. Grounded on checker_impl::operator()'s m_torrents
// (pending) / m_processing split in session.cpp.
type checkJob struct {
	torrent    Torrent
	resumeData []byte

	abort   bool
	resultC chan checkJobResult
}

type checkJobResult struct {
	err    error
	pieces []byte
}

// checkerThread is the dedicated goroutine that verifies pieces while the
// reactor keeps servicing peer I/O. It owns its own mutex+cond, acquired
// only after session.mu when both are needed (spec §3 lock ordering) —
// today nothing in checker.go needs session.mu at all, since a checkJob
// carries everything required to do the work.
type checkerThread struct {
	session *Session

	mu         sync.Mutex
	cond       *sync.Cond
	pending    []*checkJob
	processing *checkJob
	abortAll   bool

	stopped chan struct{}
}

func newCheckerThread(s *Session) *checkerThread {
	c := &checkerThread{session: s, stopped: make(chan struct{})}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// enqueue adds a job to the back of the pending queue and wakes the
// checker if it is waiting. Mirrors checker_impl::operator()()'s
// m_torrents.push_back plus the condition-variable notify in
// session::add_torrent (session.cpp).
func (c *checkerThread) enqueue(job *checkJob) {
	c.mu.Lock()
	c.pending = append(c.pending, job)
	c.cond.Signal()
	c.mu.Unlock()
}

// cancel marks a torrent's queued (or in-flight) job aborted. If it's
// still only pending it is dropped outright; if it is the job currently
// processing, abort is set on it, matching remove_torrent's "mark abort if
// processing, else erase" split in session.cpp. check reads the flag only
// before it starts, so a verification already under way runs to completion.
func (c *checkerThread) cancel(ih [20]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.pending[:0]
	for _, j := range c.pending {
		if j.torrent.InfoHash() == ih {
			continue
		}
		kept = append(kept, j)
	}
	c.pending = kept
	if c.processing != nil && c.processing.torrent.InfoHash() == ih {
		c.processing.abort = true
	}
}

func (c *checkerThread) stop() {
	c.mu.Lock()
	c.abortAll = true
	if c.processing != nil {
		c.processing.abort = true
	}
	c.cond.Broadcast()
	c.mu.Unlock()
	<-c.stopped
}

// run is the checker thread body, grounded on checker_impl::operator()():
// wait for work, pop the front job, attempt fast-resume parsing first and
// fall back to a full scan, post an alert on rejection (never fatal to the
// session), then notify the waiting caller via resultC.
func (c *checkerThread) run() {
	defer close(c.stopped)
	for {
		c.mu.Lock()
		for len(c.pending) == 0 && !c.abortAll {
			c.cond.Wait()
		}
		if c.abortAll && len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		if len(c.pending) == 0 {
			c.mu.Unlock()
			continue
		}
		job := c.pending[0]
		c.pending = c.pending[1:]
		c.processing = job
		c.mu.Unlock()

		result := c.check(job)

		c.mu.Lock()
		c.processing = nil
		c.mu.Unlock()

		if job.resultC != nil {
			job.resultC <- result
		}

		if c.abortAll {
			return
		}
	}
}

func (c *checkerThread) check(job *checkJob) checkJobResult {
	t := job.torrent
	if job.abort {
		return checkJobResult{err: &InvariantViolation{What: "check aborted before starting"}}
	}
	if len(job.resumeData) > 0 {
		res, err := parseFastResume(job.resumeData, t.InfoHash(), t.NumPieces(), blockUnit(t), t.PieceAdler32, t.FileSizesMatch)
		if err == nil {
			if applyErr := t.ApplyFastResume(res.Pieces.Bytes(), res.Unfinished); applyErr != nil {
				return checkJobResult{err: applyErr}
			}
			if len(res.Peers) > 0 {
				t.SeedPeers(res.Peers)
			}
			return checkJobResult{pieces: res.Pieces.Bytes()}
		}
		c.session.postAlert(Alert{
			Kind:     AlertFastresumeRejected,
			Severity: SeverityWarning,
			InfoHash: t.InfoHash(),
			Message:  err.Error(),
		})
	}
	pieces, err := t.VerifyAll()
	if err != nil {
		return checkJobResult{err: err}
	}
	return checkJobResult{pieces: pieces}
}

// blockUnit returns the plain "blocks per piece" integer parseFastResume
// wants: PieceLength(0)/BlockSize(), or 1 when BlockSize() is 0. A concrete
// Torrent must keep that ratio consistent across every piece but the last.
func blockUnit(t Torrent) int {
	if t.BlockSize() == 0 {
		return 1
	}
	return t.PieceLength(0) / t.BlockSize()
}
