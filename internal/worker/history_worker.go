package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"reportdesk/internal/service"
)

// HistoryWorker periodically rebuilds the picks-history read-model as a
// safety net in case the post-import refresh was skipped or failed.
type HistoryWorker struct {
	service  service.ReportService
	interval time.Duration
	stopChan chan struct{}
	// Start runs on the scheduler goroutine while Stop comes from the
	// shutdown path, so the flag has to be atomic.
	running atomic.Bool
}

func NewHistoryWorker(service service.ReportService, interval time.Duration) *HistoryWorker {
	return &HistoryWorker{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (w *HistoryWorker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}

	log.Printf("History Worker started with interval %v", w.interval)

	w.refresh()

	go w.run()
}

func (w *HistoryWorker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	close(w.stopChan)
	log.Println("History Worker stopped")
}

func (w *HistoryWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refresh()
		case <-w.stopChan:
			return
		}
	}
}

func (w *HistoryWorker) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := w.service.RefreshPicksHistory(ctx); err != nil {
		log.Printf("History Worker error: %v", err)
	} else {
		log.Println("History Worker: picks history rebuilt")
	}
}
