package job

import (
	"context"
	"log"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconcileJob 对账任务
// 定期校验每个账户的不变量：balance == Σ(in流水) - Σ(out流水)
// 出现偏差说明余额和流水没有在同一个事务内落库，记录日志等待排查。
// 只读扫描，不修正数据
type ReconcileJob struct {
	db       *gorm.DB
	cfg      *config.Config
	interval time.Duration
	pageSize int
}

func NewReconcileJob(db *gorm.DB, cfg *config.Config) *ReconcileJob {
	interval := time.Duration(cfg.Business.ReconcileIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReconcileJob{
		db:       db,
		cfg:      cfg,
		interval: interval,
		pageSize: 500,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[Reconcile] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reconcile] 收到停止信号，任务退出")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 扫描一轮全部账户，返回偏差账户数
func (j *ReconcileJob) RunOnce(ctx context.Context) int {
	drifted := 0
	lastID := int64(0)

	for {
		var accounts []*model.Account
		err := j.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(j.pageSize).
			Find(&accounts).Error
		if err != nil {
			log.Printf("[Reconcile] 查询账户失败: %v", err)
			return drifted
		}
		if len(accounts) == 0 {
			break
		}

		for _, account := range accounts {
			if !j.checkAccount(ctx, account) {
				drifted++
			}
			lastID = account.ID
		}
	}

	if drifted > 0 {
		log.Printf("[Reconcile] 对账完成，发现 %d 个账户余额与流水不一致", drifted)
	}
	return drifted
}

// checkAccount 校验单个账户，一致返回 true
func (j *ReconcileJob) checkAccount(ctx context.Context, account *model.Account) bool {
	expected, err := j.ExpectedBalance(ctx, account.ID)
	if err != nil {
		log.Printf("[Reconcile] 汇总流水失败: accountID=%d, err=%v", account.ID, err)
		return true
	}

	if !account.Balance.Equal(expected) {
		log.Printf("[Reconcile] 余额偏差: account=%s, balance=%s, expected=%s, drift=%s",
			account.AccountNumber,
			account.Balance.String(),
			expected.String(),
			account.Balance.Sub(expected).String(),
		)
		return false
	}
	return true
}

// ExpectedBalance 按流水推算账户应有余额：Σ(in) - Σ(out)
func (j *ReconcileJob) ExpectedBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var result struct {
		Expected decimal.Decimal
	}
	err := j.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE -amount END), 0) AS expected",
			model.TransactionDirectionIn).
		Where("account_id = ?", accountID).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Expected, nil
}
