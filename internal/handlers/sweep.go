package handlers

import (
	"context"
	"log"
	"time"
)

// overdueExpirer is implemented by services.AgreementService.
type overdueExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// AgreementSweepService proactively expires overdue agreements so that
// listing and reporting views are accurate without a read triggering the
// lazy check.
type AgreementSweepService struct {
	expirer  overdueExpirer
	interval time.Duration
	ticker   *time.Ticker
	done     chan bool
}

func NewAgreementSweepService(expirer overdueExpirer, interval time.Duration) *AgreementSweepService {
	return &AgreementSweepService{
		expirer:  expirer,
		interval: interval,
		done:     make(chan bool),
	}
}

func (s *AgreementSweepService) Start() {
	s.ticker = time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-s.ticker.C:
				s.sweep()
			}
		}
	}()
	log.Println("Agreement expiry sweep service started")
}

func (s *AgreementSweepService) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.done <- true
	log.Println("Agreement expiry sweep service stopped")
}

func (s *AgreementSweepService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := s.expirer.ExpireOverdue(ctx)
	if err != nil {
		log.Printf("Error during agreement expiry sweep: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("Expired %d overdue agreements", expired)
	}
}
