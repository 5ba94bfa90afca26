package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the session service used by the conversation controller. Every mutation is a
// read-modify-write against the repository, serialized per user.
type Store struct {
	repo     Repository
	resolver ProductResolver
	nowFunc  func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewStore creates a Store over repo; resolver enforces the catalog fallback on product keys.
func NewStore(repo Repository, resolver ProductResolver) *Store {
	return &Store{
		repo:     repo,
		resolver: resolver,
		nowFunc:  time.Now,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Store) lock(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// load returns the stored session or a fresh default one. created reports the latter.
func (s *Store) load(ctx context.Context, userID int64) (sess Session, created bool, err error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Session{}, false, fmt.Errorf("load session %d: %w", userID, err)
	}
	if stored == nil {
		return Session{
			UserID:     userID,
			ProductKey: s.resolver.ResolveKey(""),
			State:      StateStart,
		}, true, nil
	}
	sess = *stored
	sess.ProductKey = s.resolver.ResolveKey(sess.ProductKey)
	if sess.State == "" {
		sess.State = StateStart
	}
	return sess, false, nil
}

// update applies fn under the user's lock and persists the result when fn reports a change
// or the session did not exist yet.
func (s *Store) update(ctx context.Context, userID int64, fn func(*Session) bool) (Session, error) {
	unlock := s.lock(userID)
	defer unlock()

	sess, created, err := s.load(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if changed := fn(&sess); !changed && !created {
		return sess, nil
	}
	sess.UpdatedAt = s.nowFunc().UTC()
	if err := s.repo.Put(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("save session %d: %w", userID, err)
	}
	return sess, nil
}

// GetOrCreate returns the user's session, creating it with the default product when absent.
func (s *Store) GetOrCreate(ctx context.Context, userID int64) (Session, error) {
	return s.update(ctx, userID, func(*Session) bool { return false })
}

// Get returns the session without creating one. ok is false when none exists.
func (s *Store) Get(ctx context.Context, userID int64) (Session, bool, error) {
	sess, created, err := s.load(ctx, userID)
	if err != nil {
		return Session{}, false, err
	}
	return sess, !created, nil
}

// SetChat records the chat the user talks to the bot from.
func (s *Store) SetChat(ctx context.Context, userID, chatID int64) (Session, error) {
	return s.update(ctx, userID, func(sess *Session) bool {
		if sess.ChatID == chatID {
			return false
		}
		sess.ChatID = chatID
		return true
	})
}

// SetProduct selects a product. Unknown keys resolve to the catalog default.
func (s *Store) SetProduct(ctx context.Context, userID int64, key string) (Session, error) {
	resolved := s.resolver.ResolveKey(key)
	return s.update(ctx, userID, func(sess *Session) bool {
		if sess.ProductKey == resolved {
			return false
		}
		sess.ProductKey = resolved
		return true
	})
}

// SetState moves the conversation to st.
func (s *Store) SetState(ctx context.Context, userID int64, st State) error {
	_, err := s.update(ctx, userID, func(sess *Session) bool {
		if sess.State == st {
			return false
		}
		sess.State = st
		return true
	})
	return err
}

// MarkPurchased sets the purchased flag, records productKey as the purchased product and
// moves the session to StateFulfilled. changed is false when the user had already purchased;
// the recorded product is then left as it was.
func (s *Store) MarkPurchased(ctx context.Context, userID int64, productKey string) (changed bool, err error) {
	resolved := s.resolver.ResolveKey(productKey)
	_, err = s.update(ctx, userID, func(sess *Session) bool {
		if sess.Purchased {
			return false
		}
		sess.Purchased = true
		sess.PurchasedKey = resolved
		sess.ProductKey = resolved
		sess.State = StateFulfilled
		changed = true
		return true
	})
	return changed, err
}

// SetReminderDue records the due time of the user's latest scheduled reminder. Reminders
// due at any other time are stale.
func (s *Store) SetReminderDue(ctx context.Context, userID int64, dueAt time.Time) error {
	dueAt = dueAt.UTC()
	_, err := s.update(ctx, userID, func(sess *Session) bool {
		if sess.ReminderDueAt.Equal(dueAt) {
			return false
		}
		sess.ReminderDueAt = dueAt
		return true
	})
	return err
}

// RecordPayment stores ref as the user's current payment reference, replacing any previous one.
func (s *Store) RecordPayment(ctx context.Context, userID int64, ref string) error {
	_, err := s.update(ctx, userID, func(sess *Session) bool {
		if sess.PaymentReference == ref {
			return false
		}
		sess.PaymentReference = ref
		return true
	})
	return err
}

// PaymentReference returns the user's last payment reference, if any.
func (s *Store) PaymentReference(ctx context.Context, userID int64) (string, bool, error) {
	sess, _, err := s.load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	return sess.PaymentReference, sess.PaymentReference != "", nil
}
