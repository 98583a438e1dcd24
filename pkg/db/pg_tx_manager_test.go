package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

type stubTx struct{ pgx.Tx }

func TestConnPrefersTxFromContext(t *testing.T) {
	t.Parallel()

	m := &PgTxManager{}
	tx := &stubTx{}

	ctxTx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))
	assert.Same(t, tx, m.Conn(ctxTx))

	_, inTx := m.Conn(context.Background()).(*stubTx)
	assert.False(t, inTx, "outside RunMaster the pool is used")
}
