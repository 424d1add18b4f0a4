package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// IsDuplicateKey 唯一约束冲突（postgres 23505 / sqlite UNIQUE constraint）
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "23505") ||
		strings.Contains(msg, "unique constraint failed")
}

// IsForeignKeyViolation 外键约束失败（postgres 23503 / sqlite FOREIGN KEY constraint），
// 通常是父记录已被并发删除
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint") || strings.Contains(msg, "23503")
}

// SQLiteDSN 为 sqlite DSN 打开外键检查（sqlite 按连接默认关闭）
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// notFound 统一 gorm.ErrRecordNotFound → ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
