package views

// ErrorTitle is the only text on the error page.
const ErrorTitle = "Oops! Something went wrong."

// ErrorView is the fallback page reached when a home is opened without a user.
type ErrorView struct{}

// Title returns the page heading.
func (ErrorView) Title() string {
	return ErrorTitle
}

// GoHome navigates back to the launcher in the same browser context.
func (ErrorView) GoHome() Navigation {
	return Navigation{Path: LauncherPath}
}
