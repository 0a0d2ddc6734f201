package stripe

import "go.uber.org/fx"

// Module provides the stripe backed gateway.Client.
var Module = fx.Options(
	fx.Provide(NewClient),
)
