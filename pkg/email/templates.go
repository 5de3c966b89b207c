package email

import (
	"fmt"
	"html"
)

const layout = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #1a1a1a;">
    <table role="presentation" style="width: 100%%; border-collapse: collapse;">
        <tr>
            <td align="center" style="padding: 40px 0;">
                <table role="presentation" style="width: 600px; border-collapse: collapse; background-color: #f5f0e6; border-radius: 8px;">
                    <!-- Header -->
                    <tr>
                        <td style="padding: 40px 30px; text-align: center; background-color: #c0392b; border-radius: 8px 8px 0 0;">
                            <h1 style="margin: 0; color: #ffffff; font-size: 28px;">%s</h1>
                        </td>
                    </tr>
                    <!-- Content -->
                    <tr>
                        <td style="padding: 40px 30px;">
%s
                            <table role="presentation" style="margin: 30px 0;">
                                <tr>
                                    <td align="center">
                                        <a href="%s" style="display: inline-block; padding: 14px 40px; background-color: #c0392b; color: #ffffff; text-decoration: none; border-radius: 6px; font-size: 16px; font-weight: bold;">Open my account</a>
                                    </td>
                                </tr>
                            </table>
                        </td>
                    </tr>
                    <!-- Footer -->
                    <tr>
                        <td style="padding: 30px; text-align: center; border-radius: 0 0 8px 8px;">
                            <p style="margin: 0; font-size: 12px; line-height: 18px; color: #999999;">
                                © Vibz. All rights reserved.
                            </p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>
`

func paragraph(text string) string {
	return fmt.Sprintf(`                            <p style="margin: 0 0 20px; font-size: 16px; line-height: 24px; color: #333333;">%s</p>`+"\n", text)
}

func greeting(name string) string {
	if name == "" {
		return paragraph("Hi,")
	}
	return paragraph(fmt.Sprintf("Hi %s,", html.EscapeString(name)))
}

// WelcomeEmailTemplate generates HTML for the sign up email
func WelcomeEmailTemplate(name, accountURL string) string {
	body := greeting(name) +
		paragraph("Your Vibz account is ready. Pick a username and connect your wallet to get started.")
	return fmt.Sprintf(layout, "Welcome to Vibz", "Welcome to Vibz!", body, html.EscapeString(accountURL))
}

// PurchaseReceiptTemplate generates HTML for a completed purchase
func PurchaseReceiptTemplate(name string, receipt Receipt, accountURL string) string {
	body := greeting(name) +
		paragraph(fmt.Sprintf("Thank you for your purchase. <strong>%d $VIBZ</strong> were added to your account.", receipt.Amount)) +
		paragraph(fmt.Sprintf("Your balance is now <strong>%d $VIBZ</strong>.", receipt.Balance))
	if receipt.SessionID != "" {
		body += paragraph(fmt.Sprintf(`<span style="font-size: 12px; color: #666666;">Reference: %s</span>`, html.EscapeString(receipt.SessionID)))
	}
	return fmt.Sprintf(layout, "Your $VIBZ receipt", "Purchase confirmed", body, html.EscapeString(accountURL))
}
