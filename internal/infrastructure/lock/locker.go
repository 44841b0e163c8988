package lock

import (
	"context"
	"errors"
)

var ErrLockFailed = errors.New("获取账户互斥锁失败")

// Locker 账户维度的互斥锁
//
// 账务引擎对同一账户的变更请求先抢这把锁，再进数据库事务。
// 正确性最终由数据库行锁保证，这把锁的作用是把同一账户的并发请求
// 挡在事务外排队，避免大量请求堆在 InnoDB 锁等待上
//
// 【设计思考】为什么按账户维度加锁？
// 全局锁并发度太低；按账户加锁后，不同账户的请求可以完全并行，
// 同一账户的请求串行 —— 这正是我们想要的
type Locker interface {
	// Lock 阻塞式抢锁，token 标识持有者，释放时校验
	Lock(ctx context.Context, key, token string) error
	// Unlock 释放锁，只有 token 匹配时才真正删除
	Unlock(ctx context.Context, key, token string) error
}
