package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

var home = domain.Coordinate{Latitude: 40, Longitude: -74}

func newMock(t *testing.T) (*GeofenceRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewGeofenceRepo(db), mock
}

func mustEncode(t *testing.T, c domain.Coordinate) []byte {
	t.Helper()
	data, err := EncodeCenter(c)
	require.NoError(t, err)
	return data
}

func TestCenterRoundTrip(t *testing.T) {
	c := domain.Coordinate{Latitude: -6.2088, Longitude: 106.8456}
	got, err := DecodeCenter(mustEncode(t, c))
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeCenter_Garbage(t *testing.T) {
	_, err := DecodeCenter([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS geofences`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_Success(t *testing.T) {
	repo, mock := newMock(t)
	ts := time.Unix(1715003456, 0).UTC()
	park := domain.Coordinate{Latitude: 40.5, Longitude: -73.9}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM geofences`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO geofences`).
		WithArgs("Home", mustEncode(t, home), 500.0, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO geofences`).
		WithArgs("Park", mustEncode(t, park), 500.0, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), domain.RegistrySnapshot{
		Geofences: []domain.Geofence{
			{Name: "Home", Center: home, Radius: 500},
			{Name: "Park", Center: park, Radius: 500},
		},
		TakenAt: ts,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_InsertErrorRollsBack(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM geofences`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO geofences`).WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err := repo.Save(context.Background(), domain.RegistrySnapshot{
		Geofences: []domain.Geofence{{Name: "Home", Center: home, Radius: 500}},
	})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_Success(t *testing.T) {
	repo, mock := newMock(t)
	older := time.Unix(1715000000, 0).UTC()
	newer := time.Unix(1715003456, 0).UTC()

	rows := sqlmock.NewRows([]string{"name", "center", "radius_meters", "saved_at"}).
		AddRow("Home", mustEncode(t, home), 500.0, newer).
		AddRow("Work", mustEncode(t, domain.Coordinate{Latitude: 41, Longitude: -73}), 250.0, older)
	mock.ExpectQuery(`SELECT name, center, radius_meters, saved_at FROM geofences ORDER BY name`).
		WillReturnRows(rows)

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Geofences, 2)
	assert.Equal(t, domain.Geofence{Name: "Home", Center: home, Radius: 500}, snap.Geofences[0])
	assert.Equal(t, 250.0, snap.Geofences[1].Radius)
	assert.True(t, snap.TakenAt.Equal(newer))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_Empty(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT name, center, radius_meters, saved_at FROM geofences`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "center", "radius_meters", "saved_at"}))

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Geofences)
	assert.True(t, snap.TakenAt.IsZero())
}

func TestLoad_QueryError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT name`).WillReturnError(sqlmock.ErrCancelled)

	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}

func TestLoad_BadCenter(t *testing.T) {
	repo, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"name", "center", "radius_meters", "saved_at"}).
		AddRow("Home", []byte{0xff}, 500.0, time.Now())
	mock.ExpectQuery(`SELECT name`).WillReturnRows(rows)

	_, err := repo.Load(context.Background())
	assert.ErrorContains(t, err, "Home")
}
