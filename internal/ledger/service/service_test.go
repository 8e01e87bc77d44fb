package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nymreg/internal/access"
	storemem "nymreg/internal/ledger/store/memory"
	registrysvc "nymreg/internal/registry/service"
	registrymem "nymreg/internal/registry/store/memory"
	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
)

var (
	admin = account(0xad)
	alice = account(0x01)
	bob   = account(0x02)
	carol = account(0x03)
)

func account(b byte) id.Account {
	var a id.Account
	a[19] = b
	return a
}

// staticRegistry is a fixed registration set standing in for the registry
// service.
type staticRegistry struct {
	mu         sync.Mutex
	registered map[id.Account]bool
}

func registryOf(accounts ...id.Account) *staticRegistry {
	r := &staticRegistry{registered: make(map[id.Account]bool)}
	for _, a := range accounts {
		r.registered[a] = true
	}
	return r
}

func (r *staticRegistry) IsRegistered(_ context.Context, account id.Account) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered[account], nil
}

type fixture struct {
	svc   *Service
	store *storemem.InMemoryStore
	ctrl  *access.Controller
}

func newFixture(t *testing.T, globalCap uint64, registered ...id.Account) *fixture {
	t.Helper()
	store := storemem.New(globalCap)
	ctrl := access.New(admin)
	svc, err := New(store, registryOf(registered...), ctrl)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, ctrl: ctrl}
}

func TestNew(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := New(nil, registryOf(), access.New(admin))
		assert.Error(t, err)
	})

	t.Run("requires registry", func(t *testing.T) {
		_, err := New(storemem.New(100), nil, access.New(admin))
		assert.Error(t, err)
	})

	t.Run("requires access controller", func(t *testing.T) {
		_, err := New(storemem.New(100), registryOf(), nil)
		assert.Error(t, err)
	})
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("successive mints accumulate against the global cap", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice, bob)

		require.NoError(t, f.svc.Mint(ctx, alice, 600))
		require.NoError(t, f.svc.Mint(ctx, bob, 500))

		aliceBal, err := f.svc.BalanceOf(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), aliceBal)

		total, err := f.svc.TotalIssued(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1100), total)
	})

	t.Run("unregistered caller rejected", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice)

		err := f.svc.Mint(ctx, bob, 10)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice)

		err := f.svc.Mint(ctx, alice, 0)
		assert.ErrorIs(t, err, ErrZeroAmount)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("per-operation cap enforced", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice)

		assert.NoError(t, f.svc.Mint(ctx, alice, DefaultPerOpCap))
		err := f.svc.Mint(ctx, alice, DefaultPerOpCap+1)
		assert.ErrorIs(t, err, ErrExceedsPerOpCap)

		total, _ := f.svc.TotalIssued(ctx)
		assert.Equal(t, DefaultPerOpCap, total, "rejected mint must not issue")
	})

	t.Run("per-operation cap is configurable", func(t *testing.T) {
		store := storemem.New(1_000_000)
		svc, err := New(store, registryOf(alice), access.New(admin), WithPerOpCap(5))
		require.NoError(t, err)

		assert.NoError(t, svc.Mint(ctx, alice, 5))
		assert.ErrorIs(t, svc.Mint(ctx, alice, 6), ErrExceedsPerOpCap)
	})

	t.Run("global cap enforced fail-closed", func(t *testing.T) {
		store := storemem.New(1000)
		svc, err := New(store, registryOf(alice, bob), access.New(admin))
		require.NoError(t, err)

		require.NoError(t, svc.Mint(ctx, alice, 600))
		require.NoError(t, svc.Mint(ctx, bob, 399))

		assert.ErrorIs(t, svc.Mint(ctx, bob, 2), ErrExceedsGlobalCap)
		assert.True(t, dErrors.HasCode(svc.Mint(ctx, bob, 2), dErrors.CodeFailedPrecondition))

		// Exactly up to the ceiling is still allowed.
		assert.NoError(t, svc.Mint(ctx, bob, 1))
		assert.ErrorIs(t, svc.Mint(ctx, alice, 1), ErrExceedsGlobalCap)

		total, _ := svc.TotalIssued(ctx)
		assert.Equal(t, uint64(1000), total)
	})

	t.Run("rejected while paused", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice)
		require.NoError(t, f.ctrl.Pause(admin))

		err := f.svc.Mint(ctx, alice, 10)
		assert.ErrorIs(t, err, access.ErrPaused)
	})
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves balance without changing issuance", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice, bob)
		require.NoError(t, f.svc.Mint(ctx, alice, 100))

		require.NoError(t, f.svc.Transfer(ctx, alice, bob, 40))

		aliceBal, _ := f.svc.BalanceOf(ctx, alice)
		bobBal, _ := f.svc.BalanceOf(ctx, bob)
		total, _ := f.svc.TotalIssued(ctx)
		assert.Equal(t, uint64(60), aliceBal)
		assert.Equal(t, uint64(40), bobBal)
		assert.Equal(t, uint64(100), total)
	})

	t.Run("insufficient balance rejected", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice, bob)
		require.NoError(t, f.svc.Mint(ctx, alice, 10))

		err := f.svc.Transfer(ctx, alice, bob, 11)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		aliceBal, _ := f.svc.BalanceOf(ctx, alice)
		assert.Equal(t, uint64(10), aliceBal)
	})

	t.Run("unregistered recipient rejected", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice)
		require.NoError(t, f.svc.Mint(ctx, alice, 10))

		err := f.svc.Transfer(ctx, alice, carol, 5)
		assert.ErrorIs(t, err, ErrRecipientNotRegistered)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeFailedPrecondition))
	})

	t.Run("unregistered sender rejected before recipient check", func(t *testing.T) {
		f := newFixture(t, 1_000_000, bob)

		err := f.svc.Transfer(ctx, alice, bob, 5)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice, bob)

		assert.ErrorIs(t, f.svc.Transfer(ctx, alice, bob, 0), ErrZeroAmount)
	})

	t.Run("rejected while paused", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice, bob)
		require.NoError(t, f.svc.Mint(ctx, alice, 10))
		require.NoError(t, f.ctrl.Pause(admin))

		assert.ErrorIs(t, f.svc.Transfer(ctx, alice, bob, 5), access.ErrPaused)
	})
}

func TestBalanceOf(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered caller rejected", func(t *testing.T) {
		f := newFixture(t, 1_000_000)

		_, err := f.svc.BalanceOf(ctx, alice)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("readable while paused", func(t *testing.T) {
		f := newFixture(t, 1_000_000, alice)
		require.NoError(t, f.svc.Mint(ctx, alice, 25))
		require.NoError(t, f.ctrl.Pause(admin))

		bal, err := f.svc.BalanceOf(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(25), bal)
	})
}

// blockingStore parks Transfer until released so a second call for the same
// account can be observed hitting the in-progress guard.
type blockingStore struct {
	*storemem.InMemoryStore
	entered  chan struct{}
	release  chan struct{}
	enterOne sync.Once
}

func (b *blockingStore) Transfer(ctx context.Context, from, to id.Account, amount uint64) error {
	b.enterOne.Do(func() { close(b.entered) })
	<-b.release
	return b.InMemoryStore.Transfer(ctx, from, to, amount)
}

func TestOperationInProgress(t *testing.T) {
	ctx := context.Background()

	store := &blockingStore{
		InMemoryStore: storemem.New(1_000_000),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	svc, err := New(store, registryOf(alice, bob), access.New(admin))
	require.NoError(t, err)
	_, err = store.InMemoryStore.Mint(ctx, alice, 100)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- svc.Transfer(ctx, alice, bob, 10)
	}()
	<-store.entered

	// Same account, concurrent mutation: rejected outright.
	assert.ErrorIs(t, svc.Mint(ctx, alice, 1), ErrOperationInProgress)
	assert.ErrorIs(t, svc.Transfer(ctx, alice, bob, 1), ErrOperationInProgress)

	// A different account is unaffected.
	assert.NoError(t, svc.Mint(ctx, bob, 1))

	close(store.release)
	require.NoError(t, <-done)

	// The guard clears once the operation finishes.
	assert.NoError(t, svc.Mint(ctx, alice, 1))
}

// Balances are keyed by account, not by nullifier: deregistering blocks
// access to the balance but never destroys it, and a later registration under
// a fresh nullifier picks it back up.
func TestBalanceSurvivesLogout(t *testing.T) {
	ctx := context.Background()

	ctrl := access.New(admin)
	registry, err := registrysvc.New(registrymem.New(), ctrl,
		registrysvc.WithVerifier(func(id.Account, id.Nullifier, []byte) error { return nil }),
	)
	require.NoError(t, err)
	ledger, err := New(storemem.New(1_000_000), registry, ctrl)
	require.NoError(t, err)

	var n1, n2 id.Nullifier
	n1[31] = 1
	n2[31] = 2

	require.NoError(t, registry.Register(ctx, alice, n1, nil))
	require.NoError(t, ledger.Mint(ctx, alice, 600))

	require.NoError(t, registry.Logout(ctx, alice))
	_, err = ledger.BalanceOf(ctx, alice)
	assert.ErrorIs(t, err, ErrNotRegistered)

	// Re-registering under a different nullifier restores access.
	require.NoError(t, registry.Register(ctx, alice, n2, nil))
	bal, err := ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), bal)
}
