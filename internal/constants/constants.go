package constants

// 转化状态常量（按推进顺序排列）
const (
	ConversionStatusInitiated  = "initiated"
	ConversionStatusPending    = "pending"
	ConversionStatusApproved   = "approved"
	ConversionStatusDeclined   = "declined"
	ConversionStatusRefunded   = "refunded"
	ConversionStatusChargeback = "chargeback"
)

// 转化事件类型常量
const (
	ConversionTypeReg        = "reg"
	ConversionTypePurchase   = "purchase"
	ConversionTypeRebill     = "rebill"
	ConversionTypeRefund     = "refund"
	ConversionTypeChargeback = "chargeback"
)

// 事件来源常量
const (
	EventSourceFirstParty = "first-party"
	EventSourceTracker    = "tracker-source"
	EventSourcePayment    = "payment-source"
)

// 反作弊等级常量
const (
	AntifraudLevelOK   = "ok"
	AntifraudLevelSoft = "soft"
	AntifraudLevelHard = "hard"
)

// 回传配置归属常量
const (
	PostbackOwnerScopeOwner      = "owner"
	PostbackOwnerScopeAdvertiser = "advertiser"
	PostbackOwnerScopePartner    = "partner"
)

// 回传配置作用域常量
const (
	PostbackScopeGlobal   = "global"
	PostbackScopeCampaign = "campaign"
	PostbackScopeOffer    = "offer"
	PostbackScopeFlow     = "flow"
)

// 回传请求方式与鉴权常量
const (
	PostbackMethodGet  = "GET"
	PostbackMethodPost = "POST"

	PostbackBodyFormatForm = "form"
	PostbackBodyFormatJSON = "json"

	PostbackAuthNone   = "none"
	PostbackAuthQuery  = "query"
	PostbackAuthHeader = "header"
)

// 回传投递状态常量
const (
	PostbackDeliveryPending  = "pending"
	PostbackDeliverySuccess  = "success"
	PostbackDeliveryFailed   = "failed"
	PostbackDeliveryRetrying = "retrying"
	PostbackDeliveryBlocked  = "blocked"
)

// 回传拦截原因常量
const (
	PostbackBlockReasonHard       = "antifraud_hard_block"
	PostbackBlockReasonSoftStatus = "antifraud_soft_not_pending"
)

// 回传跳过原因常量（不落投递日志）
const (
	PostbackSkipReasonRevenue = "revenue_not_positive"
	PostbackSkipReasonCountry = "country_filtered"
	PostbackSkipReasonBot     = "bot_excluded"
)

// 队列常量
const (
	QueueDefault        = "default"
	QueuePostback       = "postback"
	TaskPostbackDeliver = "postback:deliver"
)

// 队列后端名称
const (
	QueueBackendDurable = "durable"
	QueueBackendInline  = "inline"
)
