package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type DepositStatus uint8

// 充值意向状态机: pending -> proxied -> routed，只进不退
const (
	DepositStatusPending DepositStatus = iota // 地址已预测，代理合约还没部署
	DepositStatusProxied                      // 代理合约已上链
	DepositStatusRouted                       // 资金已归集到金库
)

func (s DepositStatus) String() string {
	switch s {
	case DepositStatusPending:
		return "pending"
	case DepositStatusProxied:
		return "proxied"
	case DepositStatusRouted:
		return "routed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseDepositStatus 解析状态字符串 (API 查询参数用)
func ParseDepositStatus(s string) (DepositStatus, error) {
	switch s {
	case "pending":
		return DepositStatusPending, nil
	case "proxied":
		return DepositStatusProxied, nil
	case "routed":
		return DepositStatusRouted, nil
	default:
		return 0, fmt.Errorf("unknown deposit status %q", s)
	}
}

// Deposit 充值意向实体
// user/salt/address 入库后不可变；balance 只由对账刷新、归集成功后清空；
// status 只由路由编排器推进。
type Deposit struct {
	ID      int64          // 主键
	User    common.Address `gorm:"column:user;type:varbinary(20);index"`       // 充值方标识 (20 字节)
	Salt    common.Hash    `gorm:"column:salt;type:varbinary(32);uniqueIndex"` // keccak256(user)，CREATE2 的盐
	Address common.Address `gorm:"column:address;type:varbinary(20);uniqueIndex"`
	// 最近一次观测到的代理地址余额 (wei)。NULL 表示还没观测过或已归集清空
	Balance   *decimal.Decimal `gorm:"column:balance;type:decimal(78,0)"`
	Status    DepositStatus    `gorm:"column:status;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Deposit) TableName() string { return "deposits" }

// DepositFilter 查询过滤条件，零值字段不参与过滤
type DepositFilter struct {
	User     *common.Address
	Salt     *common.Hash
	Address  *common.Address
	Statuses []DepositStatus
	Limit    int
	Offset   int
}

// DepositRepo 充值意向仓储接口
type DepositRepo interface {
	// Insert 新建一条 pending 意向，返回主键
	Insert(ctx context.Context, d *Deposit) (int64, error)

	// Query 按过滤条件查询
	Query(ctx context.Context, f DepositFilter) ([]Deposit, error)

	// UpdateStatusBatch 多行原子推进: 只有 status == from 的行会被改成 to
	// (状态守卫放在 SQL 里，保证状态机不回退)
	UpdateStatusBatch(ctx context.Context, ids []int64, from, to DepositStatus) error

	// UpdateStatusSingle 单行原子推进，clearBalance 为 true 时同时把 balance 置 NULL
	// 行不处于 from 状态时返回错误 (说明被并发跑的另一轮处理过了)
	UpdateStatusSingle(ctx context.Context, id int64, from, to DepositStatus, clearBalance bool) error

	// UpdateBalanceBatch 一个事务里刷新一批余额快照
	UpdateBalanceBatch(ctx context.Context, balances map[int64]decimal.Decimal) error

	// CountByStatus 按状态统计行数 (观测用)
	CountByStatus(ctx context.Context) (map[DepositStatus]int64, error)
}
