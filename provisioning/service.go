// Package provisioning ensures every identity owns exactly one spreadsheet.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jrsteele09/ingredient-sheets/credentials"
	"github.com/jrsteele09/ingredient-sheets/ingredients"
	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/kvstore"
	"github.com/jrsteele09/ingredient-sheets/spreadsheet"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTitle = "Ingredient Nutrition"
	DefaultLease = 2 * time.Minute

	defaultPollInterval = 100 * time.Millisecond
	maxPollInterval     = 2 * time.Second
)

// errClaimBusy means another attempt holds or just changed the claim.
var errClaimBusy = errors.New("provisioning claim held by another attempt")

// Result of EnsureResource. Created is true when this call provisioned the
// spreadsheet.
type Result struct {
	ResourceID string
	Created    bool
}

// Service provisions spreadsheets. Duplicate requests in one process share a
// single attempt; attempts across processes are serialised by a pending
// claim written with compare-and-swap. No lock is held during remote calls.
type Service struct {
	kv           kvstore.Store
	factory      spreadsheet.Factory
	title        string
	lease        time.Duration
	pollInterval time.Duration
	nowTime      func() time.Time
	group        singleflight.Group
}

// Option defines a function type to modify the Service instance.
type Option func(*Service)

// WithTitle sets the title of created spreadsheets.
func WithTitle(title string) Option {
	return func(s *Service) {
		if title != "" {
			s.title = title
		}
	}
}

// WithLease sets how old a pending claim must be before it is taken over.
func WithLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lease = d
		}
	}
}

// WithPollInterval sets the first wait while another attempt holds the claim.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(kv kvstore.Store, factory spreadsheet.Factory, options ...Option) (*Service, error) {
	if kv == nil {
		return nil, errors.New("[provisioning NewService] kv store is required")
	}
	if factory == nil {
		return nil, errors.New("[provisioning NewService] spreadsheet factory is required")
	}

	s := &Service{
		kv:           kv,
		factory:      factory,
		title:        DefaultTitle,
		lease:        DefaultLease,
		pollInterval: defaultPollInterval,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// EnsureResource returns the spreadsheet owned by identity, creating it with
// the ingredient header when none exists. Repeated calls return the same id
// and perform at most one create and header write between them.
func (s *Service) EnsureResource(ctx context.Context, identity string, cred *credentials.Credential) (Result, error) {
	if identity == "" {
		return Result{}, fmt.Errorf("%w: identity is required", apperrors.ErrInvalidInput)
	}

	// The shared attempt outlives any one caller; each caller stops waiting
	// on its own ctx. It is bounded by the lease, after which its claim
	// could be taken over anyway.
	ch := s.group.DoChan(identity, func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lease)
		defer cancel()
		return s.ensure(attemptCtx, identity, cred)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning, apperrors.Retryable(ctx.Err()))
	}
}

// Lookup returns the record stored for identity.
func (s *Service) Lookup(ctx context.Context, identity string) (Record, bool, error) {
	raw, found, err := s.kv.Get(ctx, recordKey(identity))
	if err != nil || !found {
		return Record{}, false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, false, apperrors.Wrapf(err, "decode resource record for %s", identity)
	}
	return rec, true, nil
}

func (s *Service) ensure(ctx context.Context, identity string, cred *credentials.Credential) (Result, error) {
	var result Result
	op := func() error {
		res, err := s.attempt(ctx, identity, cred)
		if errors.Is(err, errClaimBusy) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.pollInterval
	bo.MaxInterval = maxPollInterval
	bo.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errClaimBusy), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning,
			apperrors.Retryable(apperrors.Wrapf(err, "spreadsheet for %s is still being provisioned", identity)))
	default:
		return Result{}, err
	}
}

// attempt makes one pass: return a ready record, or claim and provision.
func (s *Service) attempt(ctx context.Context, identity string, cred *credentials.Credential) (Result, error) {
	key := recordKey(identity)
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning, apperrors.Retryable(apperrors.Wrapf(err, "read resource record")))
	}

	var prev []byte
	if found {
		rec, err := decodeRecord(raw)
		if err != nil {
			return Result{}, apperrors.Kind(apperrors.ErrProvisioning, apperrors.Wrapf(err, "decode resource record for %s", identity))
		}
		if rec.Status == StatusReady && rec.ResourceID != "" {
			return Result{ResourceID: rec.ResourceID}, nil
		}
		if s.nowTime().Sub(rec.UpdatedAt) < s.lease {
			return Result{}, errClaimBusy
		}
		log.Warn().
			Str("identity", identity).
			Str("stale_attempt_id", rec.AttemptID).
			Time("claimed_at", rec.UpdatedAt).
			Msg("Taking over abandoned provisioning claim; a spreadsheet from the stale attempt may be orphaned")
		prev = raw
	}

	claim := Record{
		Identity:  identity,
		Status:    StatusPending,
		AttemptID: uuid.NewString(),
		UpdatedAt: s.nowTime(),
	}
	claimRaw, err := claim.encode()
	if err != nil {
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning, err)
	}
	ok, err := s.kv.CompareAndSwap(ctx, key, prev, claimRaw)
	if err != nil {
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning, apperrors.Retryable(apperrors.Wrapf(err, "claim resource record")))
	}
	if !ok {
		return Result{}, errClaimBusy
	}

	logger := log.With().Str("identity", identity).Str("attempt_id", claim.AttemptID).Logger()
	resourceID, err := s.provision(ctx, identity, cred)
	if err != nil {
		s.release(ctx, key, claimRaw)
		return Result{}, err
	}

	ready := claim
	ready.ResourceID = resourceID
	ready.Status = StatusReady
	ready.UpdatedAt = s.nowTime()
	readyRaw, err := ready.encode()
	if err != nil {
		s.release(ctx, key, claimRaw)
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning, err)
	}
	ok, err = s.kv.CompareAndSwap(ctx, key, claimRaw, readyRaw)
	if err != nil {
		logger.Error().Err(err).Str("resource_id", resourceID).Msg("Spreadsheet created but its record could not be written; spreadsheet is orphaned")
		s.release(ctx, key, claimRaw)
		return Result{}, apperrors.Kind(apperrors.ErrProvisioning, apperrors.Retryable(apperrors.Wrapf(err, "record resource")))
	}
	if !ok {
		// The claim expired and another attempt took it over.
		logger.Warn().Str("resource_id", resourceID).Msg("Provisioning claim lost before recording; spreadsheet is orphaned")
		return Result{}, errClaimBusy
	}

	logger.Info().Str("resource_id", resourceID).Msg("Provisioned spreadsheet")
	return Result{ResourceID: resourceID, Created: true}, nil
}

// provision creates the spreadsheet and writes its header row.
func (s *Service) provision(ctx context.Context, identity string, cred *credentials.Credential) (string, error) {
	api, err := s.factory.ForCredential(ctx, identity, cred)
	if err != nil {
		return "", apperrors.Kind(apperrors.ErrProvisioning, err)
	}

	resourceID, err := api.Create(ctx, s.title)
	if err != nil {
		return "", apperrors.Kind(apperrors.ErrProvisioning, err)
	}
	if err := ingredients.WriteHeader(ctx, api, resourceID); err != nil {
		log.Warn().Err(err).Str("identity", identity).Str("resource_id", resourceID).
			Msg("Header write failed; spreadsheet is orphaned")
		return "", apperrors.Kind(apperrors.ErrProvisioning, err)
	}
	return resourceID, nil
}

// release drops this attempt's pending claim so a later attempt can start
// at once. It runs even when ctx is already cancelled.
func (s *Service) release(ctx context.Context, key string, claimRaw []byte) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.kv.CompareAndSwap(releaseCtx, key, claimRaw, nil); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to release provisioning claim")
	}
}
