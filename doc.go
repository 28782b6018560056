// Package stepup is an embeddable account lifecycle and step-up
// authentication engine. It computes the single obligation an account must
// complete next (email or phone confirmation, an expired password change,
// second-factor verification or onboarding), enforces password history and
// rotation policy, bounds trusted devices per account, and generates,
// throttles, and verifies one-time codes across delivery channels.
//
// The engine owns no persistence. Accounts, devices, and password history
// live behind adapter interfaces implemented by the hosting application;
// ephemeral state (resend throttling, verification attempt budgets) lives
// in Redis. Engines are assembled with the Builder:
//
//	engine, err := stepup.New().
//		WithConfig(stepup.DefaultConfig()).
//		WithRedis(redisClient).
//		WithDirectory(directory).
//		WithDevices(deviceStore).
//		WithSender(stepup.ChannelSMS, smsSender).
//		Build()
//
// Business-rule rejections are RuleError values carrying a stable
// ErrorCode; sentinel errors are reserved for caller contract violations.
package stepup
