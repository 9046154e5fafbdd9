package persistence

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fundrouter.com/internal/domain"
	"fundrouter.com/pkg/xerr"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// 确保 Repo 实现了仓储接口
var _ domain.DepositRepo = (*Repo)(nil)

// AutoMigrate 建表 (测试和本地环境用，线上走 migration 脚本)
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Deposit{})
}

func (r *Repo) Insert(ctx context.Context, d *domain.Deposit) (int64, error) {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return 0, xerr.Newf(xerr.DbError, "insert deposit failed: %v", err)
	}
	return d.ID, nil
}

func (r *Repo) Query(ctx context.Context, f domain.DepositFilter) ([]domain.Deposit, error) {
	q := r.db.WithContext(ctx).Model(&domain.Deposit{})

	if f.User != nil {
		q = q.Where("user = ?", *f.User)
	}
	if f.Salt != nil {
		q = q.Where("salt = ?", *f.Salt)
	}
	if f.Address != nil {
		q = q.Where("address = ?", *f.Address)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}

	q = q.Order("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var rows []domain.Deposit
	if err := q.Find(&rows).Error; err != nil {
		return nil, xerr.Newf(xerr.DbError, "query deposits failed: %v", err)
	}
	return rows, nil
}

// UpdateStatusBatch 多行状态推进，整批一个事务。
// WHERE status = from 是状态机守卫：被并发跑的另一轮先推进过的行会被自然跳过。
func (r *Repo) UpdateStatusBatch(ctx context.Context, ids []int64, from, to domain.DepositStatus) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Deposit{}).
			Where("id IN ? AND status = ?", ids, from).
			Update("status", to)
		if res.Error != nil {
			return xerr.Newf(xerr.DbError, "batch update status failed: %v", res.Error)
		}
		return nil
	})
}

func (r *Repo) UpdateStatusSingle(ctx context.Context, id int64, from, to domain.DepositStatus, clearBalance bool) error {
	updates := map[string]interface{}{"status": to}
	if clearBalance {
		updates["balance"] = nil
	}

	res := r.db.WithContext(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND status = ?", id, from). // 🔒 乐观守卫，防止状态回退/重复推进
		Updates(updates)

	if res.Error != nil {
		return xerr.Newf(xerr.DbError, "update status failed: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		// 行不存在，或者状态已经不是 from 了 (被别的编排轮抢先处理)
		return fmt.Errorf("deposit %d is not in status %s", id, from)
	}
	return nil
}

func (r *Repo) UpdateBalanceBatch(ctx context.Context, balances map[int64]decimal.Decimal) error {
	if len(balances) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, bal := range balances {
			if err := tx.Model(&domain.Deposit{}).
				Where("id = ?", id).
				Update("balance", bal).Error; err != nil {
				return xerr.Newf(xerr.DbError, "update balance failed for %d: %v", id, err)
			}
		}
		return nil
	})
}

func (r *Repo) CountByStatus(ctx context.Context) (map[domain.DepositStatus]int64, error) {
	var rows []struct {
		Status domain.DepositStatus
		Count  int64
	}

	err := r.db.WithContext(ctx).Model(&domain.Deposit{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, xerr.Newf(xerr.DbError, "count by status failed: %v", err)
	}

	counts := make(map[domain.DepositStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
