package paymentprovider

// CreateCustomerParams — параметры создания клиента в биллинге.
type CreateCustomerParams struct {
	Email   string
	UserUID string // попадает в metadata клиента
}

// Customer представляет клиента биллинга.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateCheckoutSessionParams — параметры создания checkout-сессии подписки.
type CreateCheckoutSessionParams struct {
	CustomerID        string
	PriceID           string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string // UID пользователя, связывает сессию с учёткой
	UserUID           string // дублируется в metadata сессии и подписки
}

// CheckoutSession представляет созданную checkout-сессию.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
