package types

// PaymentMethodID identifies a checkout payment method variant.
type PaymentMethodID string

const (
	PaymentMethodCard          PaymentMethodID = "card"
	PaymentMethodDigitalWallet PaymentMethodID = "digital_wallet"
	PaymentMethodSofort        PaymentMethodID = "sofort"
	PaymentMethodKlarna        PaymentMethodID = "klarna"
	PaymentMethodSepa          PaymentMethodID = "sepa"
)

// PaymentMethodConfig enables a payment method and carries its per-method options.
type PaymentMethodConfig struct {
	ID PaymentMethodID `mapstructure:"id" json:"id"`
	// StatementDescriptor overrides the global descriptor for this method.
	StatementDescriptor string `mapstructure:"statement_descriptor" json:"statement_descriptor"`
	// Country is sent to sofort as the bank country.
	Country string `mapstructure:"country" json:"country"`
}
