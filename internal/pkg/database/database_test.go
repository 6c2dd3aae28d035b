package database

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateEntry(t *testing.T) {
	assert.True(t, IsDuplicateEntry(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateEntry(pkgerrors.Wrap(gorm.ErrDuplicatedKey, "create reservation")))
	assert.True(t, IsDuplicateEntry(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))

	assert.False(t, IsDuplicateEntry(nil))
	assert.False(t, IsDuplicateEntry(&gomysql.MySQLError{Number: 1213, Message: "Deadlock found"}))
	assert.False(t, IsDuplicateEntry(pkgerrors.New("connection refused")))
}
