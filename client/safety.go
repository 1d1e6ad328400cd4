package client

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SafetyManager is the kill switch for a run. Once triggered every further
// request fails fast with ErrBlocked.
type SafetyManager struct {
	mu            sync.RWMutex
	triggered     bool
	triggerReason string
	triggeredAt   time.Time

	MaxConsecutiveErrors int
	errorCount           int

	log *zap.Logger
}

func NewSafetyManager(log *zap.Logger) *SafetyManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SafetyManager{
		MaxConsecutiveErrors: 5,
		log:                  log,
	}
}

// CheckStatus inspects a response status for ban signals (403, 429) and
// runs of server errors. Returns false once the switch is pulled.
func (sm *SafetyManager) CheckStatus(code int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.triggered {
		return false
	}

	switch {
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		sm.triggerLocked(fmt.Sprintf("HTTP %d from portal", code))
		return false
	case code >= 500:
		sm.errorCount++
		if sm.errorCount >= sm.MaxConsecutiveErrors {
			sm.triggerLocked(fmt.Sprintf("%d consecutive server errors", sm.errorCount))
			return false
		}
	case code < 400:
		sm.errorCount = 0
	}
	return true
}

// CheckError counts a transport failure towards the consecutive error limit.
func (sm *SafetyManager) CheckError(err error) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.triggered {
		return false
	}
	sm.errorCount++
	if sm.errorCount >= sm.MaxConsecutiveErrors {
		sm.triggerLocked(fmt.Sprintf("%d consecutive transport errors, last: %v", sm.errorCount, err))
		return false
	}
	return true
}

func (sm *SafetyManager) triggerLocked(reason string) {
	if sm.triggered {
		return
	}
	sm.triggered = true
	sm.triggerReason = reason
	sm.triggeredAt = time.Now()
	sm.log.Error("safety trigger activated", zap.String("reason", reason))
}

func (sm *SafetyManager) IsTriggered() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.triggered
}

// Reason returns why the switch was pulled, empty if it was not.
func (sm *SafetyManager) Reason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.triggerReason
}

func (sm *SafetyManager) TriggeredAt() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.triggeredAt
}
