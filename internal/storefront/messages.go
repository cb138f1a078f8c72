package storefront

// User-facing text. The store ships in a single locale.
const (
	msgMissingUserID     = "Пожалуйста, введите ваш Telegram ID"
	msgPurchaseInitiated = "Покупка успешно инициирована! Инвойс отправлен в Telegram."
	msgPurchaseFailed    = "Произошла ошибка при покупке"
	msgConnectionFailed  = "Ошибка соединения с сервером"
)
