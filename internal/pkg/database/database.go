// internal/pkg/database/database.go
//
// 各存储层共用的 MySQL 错误判别。
package database

import (
	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// IsDuplicateEntry 识别唯一约束冲突（MySQL 1062）。
// 插入优先（insert-first）的幂等写都依赖它来裁决并发竞争。
func IsDuplicateEntry(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *driver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
