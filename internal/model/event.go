package model

// TransactionEvent 交易事件的载荷
// 账务引擎在事务内把它序列化写进发件箱，发送任务再反序列化做投递日志。
// 金额用字符串承载，避免下游消费方拿到浮点数
type TransactionEvent struct {
	TransactionNo        string `json:"transaction_no"`
	AccountNumber        string `json:"account_number"`
	UserID               int64  `json:"user_id"`
	Type                 string `json:"type"`
	Direction            string `json:"direction"`
	Amount               string `json:"amount"`
	RelatedAccountNumber string `json:"related_account_number,omitempty"`
	OccurredAt           string `json:"occurred_at"` // RFC3339
}
