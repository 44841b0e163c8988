package service

import (
	"errors"

	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/repository"

	"github.com/go-sql-driver/mysql"
)

// 账务引擎的错误分类
// 处理层根据这些哨兵错误映射业务码，服务层内部不关心 HTTP
var (
	ErrAccountNotFound     = repository.ErrAccountNotFound  // 账户不存在或不属于当前用户
	ErrInsufficientBalance = repository.ErrBalanceNotEnough // 余额不足
	ErrWrongPin            = errors.New("PIN 错误")
	ErrInvalidAmount       = errors.New("金额不合法")
	ErrInvalidType         = errors.New("交易类型不合法")
	ErrTargetNotFound      = errors.New("目标账户不存在")
	ErrSameAccount         = errors.New("不允许向本账户转账")
	ErrConflict            = errors.New("并发冲突，请重试") // 可安全整体重试

	ErrUserAlreadyExists  = errors.New("用户已存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidToken       = errors.New("令牌无效")
)

const (
	// MySQL 锁等待超时 / 死锁被回滚
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// mapStoreError 把存储层和锁层的瞬时错误归一成 ErrConflict
// 其余错误原样返回，由调用方包装
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrLockFailed) {
		return ErrConflict
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return ErrConflict
		}
	}
	return err
}
