package service

import (
	"context"
	"errors"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/cache"
	"github.com/AlibekovAA/user-directory/backend/internal/common/clock"
	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/idgen"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/common/resilience"
	"github.com/AlibekovAA/user-directory/backend/internal/common/tasks"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
	userrepo "github.com/AlibekovAA/user-directory/backend/internal/user/repository"
)

type EventEmitter interface {
	Emit(ctx context.Context, correlationID string, event *domain.ChangeEvent) error
}

// FailureRecorder receives emissions that never reached the emitter.
type FailureRecorder interface {
	Record(ctx context.Context, correlationID string, payload []byte, reason string)
}

type TaskSubmitter interface {
	Submit(ctx context.Context, name string, fn tasks.Task) bool
	SubmitKeyed(ctx context.Context, key, name string, fn tasks.Task) bool
}

type UserService struct {
	repo        userrepo.Repository
	cache       cache.Cache
	emitter     EventEmitter
	recorder    FailureRecorder
	tasks       TaskSubmitter
	idGenerator idgen.IDGenerator
	clock       clock.Clock
	breaker     *resilience.CircuitBreaker
	log         *logger.Logger
}

type UserServiceDeps struct {
	Repo        userrepo.Repository
	Cache       cache.Cache
	Emitter     EventEmitter
	Recorder    FailureRecorder
	Tasks       TaskSubmitter
	IDGenerator idgen.IDGenerator
	Clock       clock.Clock
	Log         *logger.Logger
}

type UserServiceConfig struct {
	StorageTimeout          time.Duration
	CircuitBreakerThreshold uint32
	CircuitBreakerReset     time.Duration
}

func NewUserService(deps UserServiceDeps, config UserServiceConfig) *UserService {
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = idgen.NewUUIDGenerator()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Disabled{}
	}
	if config.StorageTimeout <= 0 {
		config.StorageTimeout = constants.DefaultUserDirRequestTimeout
	}

	return &UserService{
		repo:        deps.Repo,
		cache:       deps.Cache,
		emitter:     deps.Emitter,
		recorder:    deps.Recorder,
		tasks:       deps.Tasks,
		idGenerator: deps.IDGenerator,
		clock:       deps.Clock,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Threshold:  config.CircuitBreakerThreshold,
			Timeout:    config.StorageTimeout,
			ResetAfter: config.CircuitBreakerReset,
			Name:       "user_repository",
			Logger:     deps.Log,
			IsFailure: func(err error) bool {
				return !errors.Is(err, userrepo.ErrUserNotFound) &&
					!errors.Is(err, userrepo.ErrUserAlreadyExists) &&
					!errors.Is(err, context.Canceled)
			},
		}),
		log: deps.Log,
	}
}

// Create stores a new active user stamped with the current time. Any
// supplied id, creation time or active flag is ignored.
func (s *UserService) Create(ctx context.Context, correlationID string, input domain.User) (domain.User, error) {
	correlationID = idgen.CorrelationID(correlationID)
	user := input.Normalize()
	fields := logger.Fields{
		"correlation_id": correlationID,
		"username":       user.Username,
	}

	if err := validateUser(user); err != nil {
		fields["action"] = "create_validation_failed"
		s.log.WithFields(ctx, fields).Warnf("create validation failed: %v", err)
		recordOperation("create", err)
		return domain.User{}, err
	}

	if err := s.checkUniqueness(ctx, user); err != nil {
		fields["action"] = "create_uniqueness_failed"
		s.log.WithFields(ctx, fields).Warnf("create rejected: %v", err)
		recordOperation("create", err)
		return domain.User{}, err
	}

	id, err := s.idGenerator.NewID()
	if err != nil {
		fields["action"] = "create_id_generation_failed"
		s.log.WithFields(ctx, fields).Errorf("create failed: id generation error: %v", err)
		recordOperation("create", err)
		return domain.User{}, newInternalError("ID_GENERATION_FAILED", "failed to generate user id", err)
	}

	user.UserIdentity = domain.UserIdentity{
		ID:        domain.ID(id),
		Username:  user.Username,
		CreatedAt: s.clock.Now(),
	}
	user.Active = true

	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, user)
	})
	if errors.Is(err, userrepo.ErrUserAlreadyExists) {
		err = s.raceViolation(ctx, user)
	}
	if err != nil {
		fields["action"] = "create_persist_failed"
		s.log.WithFields(ctx, fields).Errorf("create failed: %v", err)
		recordOperation("create", err)
		var uv *UniquenessViolation
		if errors.As(err, &uv) {
			return domain.User{}, uv
		}
		return domain.User{}, storageError(err)
	}

	fields["user_id"] = string(user.ID)
	fields["action"] = "create_success"
	s.log.WithFields(ctx, fields).Info("user created")
	recordOperation("create", nil)

	s.refreshCache(ctx, correlationID, user.Username)
	s.broadcast(ctx, correlationID, user)
	return user, nil
}

// Update merges profile into the stored user read fresh from storage. The
// identity and the active flag never change here. The bool is false when
// no user has that username.
func (s *UserService) Update(ctx context.Context, correlationID, username string, profile domain.UserProfile) (domain.User, bool, error) {
	correlationID = idgen.CorrelationID(correlationID)
	username = domain.NormalizeUsername(username)
	fields := logger.Fields{
		"correlation_id": correlationID,
		"username":       username,
	}

	if err := validateProfile(profile); err != nil {
		fields["action"] = "update_validation_failed"
		s.log.WithFields(ctx, fields).Warnf("update validation failed: %v", err)
		recordOperation("update", err)
		return domain.User{}, false, err
	}

	stored, found, err := s.loadFromStorage(ctx, username)
	if err != nil {
		recordOperation("update", err)
		return domain.User{}, false, err
	}
	if !found {
		fields["action"] = "update_not_found"
		s.log.WithFields(ctx, fields).Info("user not found, update ignored")
		recordOperation("update", errNotFound)
		return domain.User{}, false, nil
	}

	updated := stored.WithProfile(profile)
	if err := s.checkEmailUniqueness(ctx, updated); err != nil {
		fields["action"] = "update_uniqueness_failed"
		s.log.WithFields(ctx, fields).Warnf("update rejected: %v", err)
		recordOperation("update", err)
		return domain.User{}, false, err
	}

	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, updated)
	})
	if errors.Is(err, userrepo.ErrUserAlreadyExists) {
		err = newUniquenessViolation(map[Violation]struct{}{
			{Field: "email", Message: emailNotUniqueMessage}: {},
		})
	}
	if err != nil {
		fields["action"] = "update_persist_failed"
		s.log.WithFields(ctx, fields).Errorf("update failed: %v", err)
		recordOperation("update", err)
		var uv *UniquenessViolation
		if errors.As(err, &uv) {
			return domain.User{}, false, uv
		}
		if errors.Is(err, userrepo.ErrUserNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, storageError(err)
	}

	fields["action"] = "update_success"
	s.log.WithFields(ctx, fields).Info("user updated")
	recordOperation("update", nil)

	s.refreshCache(ctx, correlationID, updated.Username)
	s.broadcast(ctx, correlationID, updated)
	return updated, true, nil
}

// Disable deactivates the user. Disabling an inactive user writes nothing
// but still evicts the cache entry and broadcasts.
func (s *UserService) Disable(ctx context.Context, correlationID, username string) (string, bool, error) {
	correlationID = idgen.CorrelationID(correlationID)
	username = domain.NormalizeUsername(username)
	fields := logger.Fields{
		"correlation_id": correlationID,
		"username":       username,
	}

	if username == "" {
		recordOperation("disable", errNotFound)
		return "", false, nil
	}

	user, found, err := s.loadFromStorage(ctx, username)
	if err != nil {
		recordOperation("disable", err)
		return "", false, err
	}
	if !found {
		fields["action"] = "disable_not_found"
		s.log.WithFields(ctx, fields).Info("user not found, disable ignored")
		recordOperation("disable", errNotFound)
		return "", false, nil
	}

	if user.Active {
		user.Active = false
		err := s.breaker.Call(ctx, func(ctx context.Context) error {
			return s.repo.Update(ctx, user)
		})
		if err != nil {
			fields["action"] = "disable_persist_failed"
			s.log.WithFields(ctx, fields).Errorf("disable failed: %v", err)
			recordOperation("disable", err)
			return "", false, storageError(err)
		}
	}

	removed := s.cache.Remove(ctx, user.Username)
	fields["action"] = "disable_success"
	fields["cache_evicted"] = removed
	s.log.WithFields(ctx, fields).Info("user disabled")
	recordOperation("disable", nil)

	// A refresh already queued for this user may still write the active
	// snapshot; evict again behind it.
	s.evictCache(ctx, correlationID, user.Username)

	s.broadcast(ctx, correlationID, user)
	return user.Username, true, nil
}

// FindByUsername reads through the cache. A miss loads from storage and
// refreshes the cache in the background.
func (s *UserService) FindByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	username = domain.NormalizeUsername(username)
	if username == "" {
		recordOperation("find", errNotFound)
		return domain.User{}, false, nil
	}

	if entry, ok := s.cache.Find(ctx, username); ok {
		s.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "find_cache_hit",
		}).Debug("found cached user")
		recordOperation("find", nil)
		return entry.ToUser(), true, nil
	}

	user, found, err := s.loadFromStorage(ctx, username)
	if err != nil {
		recordOperation("find", err)
		return domain.User{}, false, err
	}
	if !found {
		recordOperation("find", errNotFound)
		return domain.User{}, false, nil
	}

	recordOperation("find", nil)
	s.refreshCache(ctx, "", user.Username)
	return user, true, nil
}

func (s *UserService) loadFromStorage(ctx context.Context, username string) (domain.User, bool, error) {
	var user domain.User
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.FindByUsername(ctx, username)
		return err
	})
	if errors.Is(err, userrepo.ErrUserNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "load_user_failed",
		}).Errorf("failed to load user: %v", err)
		return domain.User{}, false, storageError(err)
	}
	return user, true, nil
}

func (s *UserService) findConflicts(ctx context.Context, user domain.User) ([]domain.User, error) {
	var matches []domain.User
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		matches, err = s.repo.FindByUsernameOrEmail(ctx, user.Username, user.Email)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}
	return matches, nil
}

func (s *UserService) checkUniqueness(ctx context.Context, user domain.User) error {
	matches, err := s.findConflicts(ctx, user)
	if err != nil {
		return err
	}

	violations := make(map[Violation]struct{})
	for _, match := range matches {
		if match.Username == user.Username {
			violations[Violation{Field: "username", Message: usernameNotUniqueMessage}] = struct{}{}
		}
		if match.Email == user.Email {
			violations[Violation{Field: "email", Message: emailNotUniqueMessage}] = struct{}{}
		}
	}
	if len(violations) > 0 {
		return newUniquenessViolation(violations)
	}
	return nil
}

// raceViolation reports the conflicts of a create that lost a race against
// a concurrent one after passing the uniqueness check.
func (s *UserService) raceViolation(ctx context.Context, user domain.User) error {
	var uv *UniquenessViolation
	if errors.As(s.checkUniqueness(ctx, user), &uv) {
		return uv
	}
	return newUniquenessViolation(map[Violation]struct{}{
		{Field: "username", Message: usernameNotUniqueMessage}: {},
	})
}

// checkEmailUniqueness ignores the user's own row.
func (s *UserService) checkEmailUniqueness(ctx context.Context, user domain.User) error {
	matches, err := s.findConflicts(ctx, user)
	if err != nil {
		return err
	}

	for _, match := range matches {
		if match.Username != user.Username && match.Email == user.Email {
			return newUniquenessViolation(map[Violation]struct{}{
				{Field: "email", Message: emailNotUniqueMessage}: {},
			})
		}
	}
	return nil
}

// refreshCache writes the user's current stored state to the cache. It
// reads storage when the task runs, not when it is queued, so a refresh
// that lags behind a later write never caches the older snapshot.
func (s *UserService) refreshCache(ctx context.Context, correlationID, username string) {
	s.submitKeyed(ctx, username, "cache_refresh", func(ctx context.Context) error {
		fields := logger.Fields{
			"correlation_id": correlationID,
			"username":       username,
			"action":         "cache_refresh",
		}
		user, found, err := s.loadFromStorage(ctx, username)
		if err != nil {
			s.cache.Remove(ctx, username)
			return err
		}
		if !found {
			ok := s.cache.Remove(ctx, username)
			s.log.WithFields(ctx, fields).Debugf("user gone, cache removal finished: %t", ok)
			return nil
		}
		ok := s.cache.Persist(ctx, domain.CacheEntryFromUser(user))
		s.log.WithFields(ctx, fields).Debugf("caching set request finished: %t", ok)
		return nil
	})
}

func (s *UserService) evictCache(ctx context.Context, correlationID, username string) {
	s.submitKeyed(ctx, username, "cache_evict", func(ctx context.Context) error {
		ok := s.cache.Remove(ctx, username)
		s.log.WithFields(ctx, logger.Fields{
			"correlation_id": correlationID,
			"username":       username,
			"action":         "cache_evict",
		}).Debugf("caching remove request finished: %t", ok)
		return nil
	})
}

func (s *UserService) broadcast(ctx context.Context, correlationID string, user domain.User) {
	event := user.ChangeEvent()
	submitted := s.submit(ctx, "emit_change_event", func(ctx context.Context) error {
		return s.emitter.Emit(ctx, correlationID, &event)
	})
	if submitted || s.recorder == nil {
		return
	}

	payload, err := event.Marshal()
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"correlation_id": correlationID,
			"username":       user.Username,
			"action":         "emit_encode_failed",
		}).Errorf("failed to encode change event: %v", err)
		return
	}
	s.recorder.Record(ctx, correlationID, payload, "background queue full")
}

// submit runs fn in the background when a task queue is configured and
// inline otherwise.
func (s *UserService) submit(ctx context.Context, name string, fn tasks.Task) bool {
	if s.tasks == nil {
		if err := fn(ctx); err != nil {
			s.log.WithFields(ctx, logger.Fields{"task": name}).Warnf("task failed: %v", err)
		}
		return true
	}
	return s.tasks.Submit(ctx, name, fn)
}

// submitKeyed is submit for tasks that must run in order with every other
// task on the same key.
func (s *UserService) submitKeyed(ctx context.Context, key, name string, fn tasks.Task) bool {
	if s.tasks == nil {
		return s.submit(ctx, name, fn)
	}
	return s.tasks.SubmitKeyed(ctx, key, name, fn)
}
