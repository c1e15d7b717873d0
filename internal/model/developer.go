package model

// Developer 接入开发者 (事件上报方、收益受益人)
//
// WalletAddress 和 ReferralCode 一经写入不可变更，且全局唯一
// (一个钱包至多绑定一个开发者)，由存储层唯一索引保证。
type Developer struct {
	ID            string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string  `gorm:"column:name;type:varchar(100);not null" json:"name"`
	WalletAddress *string `gorm:"column:wallet_address;type:varchar(42);uniqueIndex" json:"wallet_address,omitempty"`
	ReferralCode  *string `gorm:"column:referral_code;type:varchar(16);uniqueIndex" json:"referral_code,omitempty"`
	CreatedAt     int64   `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt     int64   `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Developer) TableName() string {
	return "agentads_developers"
}

// HasWallet 是否已注册钱包
func (d *Developer) HasWallet() bool {
	return d.WalletAddress != nil && *d.WalletAddress != ""
}

// Wallet 返回钱包地址 (未注册时为空串)
func (d *Developer) Wallet() string {
	if d.WalletAddress == nil {
		return ""
	}
	return *d.WalletAddress
}
