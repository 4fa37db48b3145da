package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitassess/internal/capture"
	"github.com/2beens/fitassess/internal/exercise"
	"github.com/2beens/fitassess/internal/results"
	"github.com/2beens/fitassess/internal/telemetry/metrics"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

var ErrFlowNotFound = errors.New("flow not found")

const DefaultTTL = 30 * time.Minute

type ManagerParams struct {
	TTL      time.Duration
	Policy   SubmitPolicy
	MediaDir string
	Device   capture.Device
	// NewTicker defaults to a one second time.Ticker.
	NewTicker capture.TickerFactory
	// NewVerifier and NewSubmitter are called once per flow, so in-flight
	// guards and upload progress are per flow.
	NewVerifier    func() Verifier
	NewSubmitter   func() Submitter
	ResultStore    *results.Store
	History        historyRepo
	MetricsManager *metrics.Manager
}

// Manager is the registry of running flows. Flows expire after the TTL
// without access and are closed on expiry.
type Manager struct {
	params ManagerParams
	flows  *cache.Cache
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Device == nil {
		return nil, errors.New("capture device not set")
	}
	if params.NewVerifier == nil || params.NewSubmitter == nil {
		return nil, errors.New("verifier and submitter factories must be set")
	}
	if params.ResultStore == nil {
		return nil, errors.New("result store not set")
	}
	if params.Policy == "" {
		params.Policy = SubmitAuto
	}
	if !params.Policy.IsValid() {
		return nil, fmt.Errorf("invalid submit policy: %s", params.Policy)
	}
	if params.TTL <= 0 {
		params.TTL = DefaultTTL
	}

	m := &Manager{
		params: params,
		flows:  cache.New(params.TTL, params.TTL/2),
	}
	m.flows.OnEvicted(func(id string, value any) {
		f, ok := value.(*Flow)
		if !ok {
			return
		}
		log.Debugf("flow %s evicted", id)
		f.Close()
		m.updateGauge()
	})

	return m, nil
}

// Start opens a new flow for the user on the given test.
func (m *Manager) Start(userID int, testID string) (*Flow, error) {
	exType, err := exercise.Parse(testID)
	if err != nil {
		return nil, err
	}

	f, err := newFlow(uuid.NewString(), userID, exType, deps{
		policy:         m.params.Policy,
		mediaDir:       m.params.MediaDir,
		device:         m.params.Device,
		newTicker:      m.params.NewTicker,
		verifier:       m.params.NewVerifier(),
		submitter:      m.params.NewSubmitter(),
		resultStore:    m.params.ResultStore,
		history:        m.params.History,
		metricsManager: m.params.MetricsManager,
	})
	if err != nil {
		return nil, err
	}

	m.flows.SetDefault(f.id, f)
	m.updateGauge()
	log.Debugf("flow %s started: user %d, test %s", f.id, userID, testID)

	return f, nil
}

// Get returns the user's flow and extends its lifetime. Flows of other users are not found.
func (m *Manager) Get(id string, userID int) (*Flow, error) {
	value, found := m.flows.Get(id)
	if !found {
		return nil, ErrFlowNotFound
	}
	f, ok := value.(*Flow)
	if !ok || f.userID != userID || f.Closed() {
		return nil, ErrFlowNotFound
	}
	m.flows.SetDefault(id, f)
	return f, nil
}

// Close tears the user's flow down and forgets it.
func (m *Manager) Close(id string, userID int) error {
	if _, err := m.Get(id, userID); err != nil {
		return err
	}
	// eviction closes it
	m.flows.Delete(id)
	return nil
}

func (m *Manager) Count() int {
	return m.flows.ItemCount()
}

// Shutdown closes every flow.
func (m *Manager) Shutdown() {
	for id := range m.flows.Items() {
		m.flows.Delete(id)
	}
}

func (m *Manager) updateGauge() {
	if m.params.MetricsManager == nil {
		return
	}
	m.params.MetricsManager.GaugeActiveFlows.Set(float64(m.flows.ItemCount()))
}
