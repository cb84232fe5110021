package services_test

import (
	"context"
	"testing"
	"time"

	"together-backend/internal/services"
	"together-backend/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalendarEnv(t *testing.T) (*testfixtures.DB, *services.CalendarService) {
	t.Helper()
	db := testfixtures.NewDB()
	db.AddUser("alice", "Alice", "alice@example.com")
	db.AddUser("bob", "Bob", "bob@example.com")
	db.AddUser("carol", "Carol", "carol@example.com")
	db.Link("alice", "bob")

	svc := services.NewCalendarService(db.Calendar(), db.Users())
	svc.SetClock(testfixtures.NewClock(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)).Now)
	return db, svc
}

func TestMonthRange(t *testing.T) {
	from, to, err := services.MonthRange(2024, 12)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), to)

	for _, c := range [][2]int{{2025, 0}, {2025, 13}, {0, 5}, {10000, 1}} {
		_, _, err := services.MonthRange(c[0], c[1])
		var ve *services.ValidationError
		assert.ErrorAs(t, err, &ve, "%v", c)
	}
}

func TestCreateEventValidation(t *testing.T) {
	_, svc := newCalendarEnv(t)
	ctx := context.Background()

	cases := map[string]services.CreateEventRequest{
		"missing title": {Date: "2025-03-12", Time: "19:00"},
		"missing time":  {Title: "Dinner", Date: "2025-03-12"},
		"bad date":      {Title: "Dinner", Date: "12/03/2025", Time: "19:00"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, "alice", req)
			var ve *services.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestCalendarSharedWithPartner(t *testing.T) {
	_, svc := newCalendarEnv(t)
	ctx := context.Background()

	dinner, err := svc.Create(ctx, "alice", services.CreateEventRequest{Title: " Dinner ", Date: "2025-03-12", Time: "19:00"})
	require.NoError(t, err)
	assert.Equal(t, "Dinner", dinner.Title)
	assert.Equal(t, "Alice", dinner.CreatorName)
	require.NotNil(t, dinner.StartTime)
	assert.Equal(t, time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC), *dinner.StartTime)

	_, err = svc.Create(ctx, "bob", services.CreateEventRequest{Title: "Trip", Date: "2025-04-02", Time: "08:30"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "carol", services.CreateEventRequest{Title: "Gym", Date: "2025-03-12", Time: "07:00"})
	require.NoError(t, err)

	all, err := svc.List(ctx, "alice", nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Dinner", all[0].Title)
	assert.Equal(t, "Trip", all[1].Title)

	year, month := 2025, 3
	march, err := svc.List(ctx, "bob", &year, &month)
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, dinner.ID, march[0].ID)

	onlyYear, err := svc.List(ctx, "bob", &year, nil)
	require.NoError(t, err)
	assert.Len(t, onlyYear, 2)

	carol, err := svc.List(ctx, "carol", nil, nil)
	require.NoError(t, err)
	require.Len(t, carol, 1)
	assert.Equal(t, "Gym", carol[0].Title)
}

func TestDeleteEventCreatorOnly(t *testing.T) {
	_, svc := newCalendarEnv(t)
	ctx := context.Background()

	event, err := svc.Create(ctx, "alice", services.CreateEventRequest{Title: "Movie", Date: "2025-03-15", Time: "20:00"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "bob", event.ID), services.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, "alice", event.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "alice", event.ID), services.ErrNotFound)
}
