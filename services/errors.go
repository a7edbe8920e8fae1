package services

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// 錯誤類別，handlers 依此轉換 HTTP 狀態碼
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrIntegrity  = errors.New("integrity error")
)

var (
	// ErrSpotAlreadyAvailable 重複釋放車位，呼叫端應視為已完成
	ErrSpotAlreadyAvailable = errors.New("spot is already available")
	ErrInvalidCredentials   = errors.New("invalid email or password")
)

// Error 帶有類別與具體原因的領域錯誤
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func integrityf(format string, args ...any) error {
	return &Error{Kind: ErrIntegrity, Msg: fmt.Sprintf(format, args...)}
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicateKey 同時支援 gorm 轉譯後的錯誤與 MySQL 1062
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
