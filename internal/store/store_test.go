package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blotterfeed/blotterfeed/internal/models"
)

func bond(id string) *models.Instrument {
	return &models.Instrument{
		ID:           id,
		SecurityType: models.SecurityBond,
		Currency:     "USD",
		Sector:       "Government",
		Rating:       "AAA",
		Status:       models.StatusActive,
		LastUpdate:   time.Now(),
		Bond: &models.BondFields{
			Price: 98.5, BidPrice: 98.45, AskPrice: 98.55, Yield: 4.25,
		},
	}
}

func TestInsertAndGet(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))

	got, err := s.Get("US10Y")
	require.NoError(t, err)
	assert.Equal(t, "US10Y", got.ID)
	assert.Equal(t, 98.5, got.Bond.Price)

	// The returned snapshot is a copy; mutating it must not touch the store.
	got.Bond.Price = 0
	again, err := s.Get("US10Y")
	require.NoError(t, err)
	assert.Equal(t, 98.5, again.Bond.Price)
}

func TestInsertDuplicate(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))
	err := s.Insert(bond("US10Y"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInsertReturningExisting(t *testing.T) {
	s := New()
	first, err := s.InsertReturningExisting(bond("US10Y"))
	require.NoError(t, err)
	assert.Empty(t, first)

	second, err := s.InsertReturningExisting(bond("US2Y"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "US10Y", second[0].ID)

	// The returned snapshots are copies.
	second[0].Bond.Price = 0
	got, err := s.Get("US10Y")
	require.NoError(t, err)
	assert.Equal(t, 98.5, got.Bond.Price)

	_, err = s.InsertReturningExisting(bond("US10Y"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetUnknown(t *testing.T) {
	s := New()
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))
	require.NoError(t, s.Remove("US10Y"))
	assert.ErrorIs(t, s.Remove("US10Y"), ErrNotFound)
	assert.Equal(t, 0, s.Count())
}

func TestPublishedInitializedToCurrent(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))
	cur, pub, err := s.Snapshots("US10Y")
	require.NoError(t, err)
	assert.Equal(t, cur.Bond.Price, pub.Bond.Price)
}

func TestUpdateClampsRegressingLastUpdate(t *testing.T) {
	s := New()
	in := bond("US10Y")
	require.NoError(t, s.Insert(in))

	// A write that moves lastUpdate backwards is clamped to the previous
	// value; forward moves stick.
	require.NoError(t, s.Update("US10Y", func(x *models.Instrument) {
		x.Bond.Price = 99.0
		x.LastUpdate = x.LastUpdate.Add(-time.Hour)
	}))
	got, err := s.Get("US10Y")
	require.NoError(t, err)
	assert.False(t, got.LastUpdate.Before(in.LastUpdate))
	assert.Equal(t, 99.0, got.Bond.Price)

	later := in.LastUpdate.Add(time.Minute)
	require.NoError(t, s.Update("US10Y", func(x *models.Instrument) {
		x.LastUpdate = later
	}))
	got, err = s.Get("US10Y")
	require.NoError(t, err)
	assert.True(t, got.LastUpdate.Equal(later))
}

func TestReplacePublished(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))
	require.NoError(t, s.Update("US10Y", func(x *models.Instrument) {
		x.Bond.Price = 101
	}))
	cur, _, err := s.Snapshots("US10Y")
	require.NoError(t, err)
	require.NoError(t, s.ReplacePublished("US10Y", cur))

	pub, err := s.Published("US10Y")
	require.NoError(t, err)
	assert.Equal(t, 101.0, pub.Bond.Price)
}

func TestMerge(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))
	require.NoError(t, s.Merge("US10Y", map[string]any{"bidPrice": 98.6, "rating": "AA+"}))

	got, err := s.Get("US10Y")
	require.NoError(t, err)
	assert.Equal(t, 98.6, got.Bond.BidPrice)
	assert.Equal(t, "AA+", got.Rating)
}

func TestMergeBadFieldLeavesStateUntouched(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(bond("US10Y")))
	err := s.Merge("US10Y", map[string]any{"bidPrice": 98.6, "swapRate": 1.0})
	require.Error(t, err)

	got, gerr := s.Get("US10Y")
	require.NoError(t, gerr)
	assert.Equal(t, 98.45, got.Bond.BidPrice)
}

func TestListBy(t *testing.T) {
	s := New()
	b := bond("US10Y")
	require.NoError(t, s.Insert(b))
	sw := &models.Instrument{
		ID: "USD-IRS-5Y", SecurityType: models.SecuritySwap,
		Currency: "USD", Sector: "Rates", Rating: "AA",
		Status:     models.StatusSuspended,
		LastUpdate: time.Now(),
		Swap:       &models.SwapFields{SwapRate: 4.1},
	}
	require.NoError(t, s.Insert(sw))

	assert.Len(t, s.ListByType(models.SecurityBond), 1)
	assert.Len(t, s.ListByCurrency("USD"), 2)
	assert.Len(t, s.ListByStatus(models.StatusSuspended), 1)
	assert.Len(t, s.ListByRating("AAA"), 1)
	assert.Equal(t, []string{"US10Y", "USD-IRS-5Y"}, s.IDs())
}

func TestInsertValidation(t *testing.T) {
	s := New()
	bad := bond("X")
	bad.Swap = &models.SwapFields{}
	assert.Error(t, s.Insert(bad))
}
