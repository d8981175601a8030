package images

import (
	"fmt"

	"gorm.io/gorm"
)

// SortKey 排序字段
type SortKey int

const (
	// SortByAttachmentID 按附件 ID 排序
	SortByAttachmentID SortKey = iota
	// SortByCreatedAt 按消息发送时间排序
	SortByCreatedAt
)

// Order 排序方向
type Order int

const (
	Desc Order = iota
	Asc
)

// ParseOrder 解析 asc / desc，其他值返回 false
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "", "desc":
		return Desc, true
	case "asc":
		return Asc, true
	default:
		return Desc, false
	}
}

func (o Order) String() string {
	if o == Asc {
		return "asc"
	}
	return "desc"
}

// Filter 查询条件，nil 字段表示不限制
type Filter struct {
	ChannelRefID *uint
	Deleted      *bool
}

// Active 未删除记录过滤条件
func Active(channelRefID *uint) Filter {
	deleted := false
	return Filter{ChannelRefID: channelRefID, Deleted: &deleted}
}

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	if f.ChannelRefID != nil {
		db = db.Where("channel_ref_id = ?", *f.ChannelRefID)
	}
	if f.Deleted != nil {
		db = db.Where("deleted = ?", *f.Deleted)
	}
	return db
}

// orderClause 排序子句，相同时间戳按附件 ID 同向排序
func orderClause(key SortKey, order Order) string {
	dir := order.String()
	switch key {
	case SortByCreatedAt:
		return fmt.Sprintf("created_at %s, attachment_id %s", dir, dir)
	default:
		return fmt.Sprintf("attachment_id %s", dir)
	}
}
