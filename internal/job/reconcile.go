package job

import (
	"context"
	"log"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/metrics"
	"loyaltyledger/internal/service"

	"gorm.io/gorm"
)

// ReconcileJob 定期用积分流水核对全部账户余额
// 只报告不修复：发现不一致时记录日志和指标，由人工处理
type ReconcileJob struct {
	auditService *service.AuditService
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewReconcileJob(db *gorm.DB, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		auditService: service.NewAuditService(db),
		stopCh:       make(chan struct{}),
		interval:     time.Duration(cfg.Business.ReconcileIntervalSeconds) * time.Second,
		batchSize:    200,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Printf("[ReconcileJob] 对账任务启动，间隔 %v", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcileAll(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// reconcileAll 分批遍历所有账户，返回确认不一致的账户数
func (j *ReconcileJob) reconcileAll(ctx context.Context) int {
	var afterID int64
	drifted := 0

	for {
		reports, lastID, err := j.auditService.ReconcileBatch(ctx, afterID, j.batchSize)
		if err != nil {
			log.Printf("[ReconcileJob] 对账失败: afterID=%d, err=%v", afterID, err)
			return drifted
		}

		for _, report := range reports {
			// 对账期间可能有新的变动，再确认一次
			again, err := j.auditService.Reconcile(ctx, report.AccountID)
			if err != nil {
				log.Printf("[ReconcileJob] 复核失败: accountID=%d, err=%v", report.AccountID, err)
				continue
			}
			if again.Consistent {
				continue
			}
			drifted++
			metrics.ReconcileDriftTotal.Inc()
			log.Printf("[ReconcileJob] 账户余额与流水不一致: accountID=%d, current=%d/%d, lifetime=%d/%d",
				again.AccountID, again.CurrentPoints, again.LedgerCurrent, again.LifetimePoints, again.LedgerLifetime)
		}

		if lastID == 0 {
			break
		}
		afterID = lastID
	}

	if drifted > 0 {
		log.Printf("[ReconcileJob] 本轮对账完成，不一致账户数: %d", drifted)
	}
	return drifted
}
