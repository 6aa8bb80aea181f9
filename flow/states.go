package flow

// Screen is the state machine's current screen. Transitions are driven only
// by explicit caller or callback events; there are no timer-driven
// transitions in the core.
type Screen string

const (
	ScreenWelcome            Screen = "welcome"
	ScreenLogin              Screen = "login"
	ScreenRegister           Screen = "register"
	ScreenForgotPassword     Screen = "forgot_password"
	ScreenVerifyCode         Screen = "verify_code"
	ScreenNewPassword        Screen = "new_password"
	ScreenConfirmEmail       Screen = "confirm_email"
	ScreenTelegramRoleSelect Screen = "telegram_role_select"
)
