package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockreturns/portfolio-service/internal/models"
)

func TestGetPortfolioEntry_ReturnsEntry(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM portfolio").
		WithArgs(1, "SPY", -1).
		WillReturnRows(portfolioRows().
			AddRow(1, "SPY", -1, "20", "300", "300", "6000", "6000", "0", "0", now, now))

	entry, err := db.GetPortfolioEntry(context.Background(), 1, "SPY", models.Short)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.Short, entry.PositionType)
	assert.True(t, entry.Position.Equal(decimal.NewFromInt(20)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPortfolioEntry_NoRowIsNil(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM portfolio").
		WithArgs(1, "SPY", 1).
		WillReturnError(sql.ErrNoRows)

	entry, err := db.GetPortfolioEntry(context.Background(), 1, "SPY", models.Long)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}
