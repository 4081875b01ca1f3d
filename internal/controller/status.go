package controller

import (
	"github.com/satindergrewal/loopatron/internal/export"
)

// Status is a snapshot of the player, published once per tick.
type Status struct {
	File       string  `json:"file"`
	State      string  `json:"state"`
	Beats      int     `json:"beats"`
	Tempo      float64 `json:"tempo"`
	Current    int     `json:"current"`
	Planned    int     `json:"planned"`
	Pending    int     `json:"pending_jump"`
	Source     int     `json:"source"`
	Target     int     `json:"target"`
	Candidates []int   `json:"candidates"`
	Cursor     int     `json:"cursor"`
	Scroll     int64   `json:"scroll"`
	ScrollX    float64 `json:"scroll_x"`
	Selection  int64   `json:"selection"`
	Volume     float64 `json:"volume"`

	Loading  string  `json:"loading,omitempty"`
	Progress float64 `json:"progress"`
	Message  string  `json:"progress_message,omitempty"`

	LastError  string         `json:"last_error,omitempty"`
	LastExport *export.Record `json:"last_export,omitempty"`
	LastToken  string         `json:"last_token,omitempty"`
}

func (c *Controller) snapshot() Status {
	st := Status{
		State:      "idle",
		Current:    -1,
		Planned:    -1,
		Pending:    -1,
		Source:     -1,
		Target:     -1,
		Cursor:     -1,
		Volume:     c.out.Volume(),
		Loading:    c.loading,
		LastError:  c.lastErr,
		LastExport: c.lastExport,
		LastToken:  c.lastToken,
	}
	if c.loading != "" {
		st.Progress = c.prog.Fraction
		st.Message = c.prog.Message
	}

	s := c.sess
	if s == nil {
		return st
	}
	st.File = s.meta.Basename()
	st.Beats = s.graph.Len()
	st.Tempo = s.meta.Tempo
	st.State = s.queue.State().String()
	st.Current = s.queue.Current()
	st.Planned = s.queue.Planned()
	st.Pending = s.queue.PendingJump()
	st.Source = s.selector.SourceBeat()
	st.Target = s.selector.JumpTarget()
	st.Candidates = s.selector.Candidates()
	st.Cursor = s.selector.Cursor()
	st.Scroll = s.mapper.Scroll()
	st.ScrollX = s.mapper.ScrollX()
	st.Selection = s.mapper.Selection()
	return st
}

func (c *Controller) publish() {
	st := c.snapshot()
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}

// Status returns the state as of the last tick.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Info describes the loaded track. It is empty until a track loads.
func (c *Controller) Info(verbose bool) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if verbose {
		return c.info[1]
	}
	return c.info[0]
}
