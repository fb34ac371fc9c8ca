// report.go
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"github.com/jordan-wright/email"

	"SubwayCongestion/src/config"
)

// ReportSender 发送已构建好的邮件，测试中可替换
type ReportSender func(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error

// sendWithTLS 默认发送方式：显式 TLS
func sendWithTLS(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
	return e.SendWithTLS(addr, auth, tlsConfig)
}

// BuildReport 构建 ETL 校验报告邮件
// 参数:
//   - c: 配置(发件人、收件人)
//   - subject: 邮件主题
//   - lines: 报告正文，每个元素一行
//   - attachmentPath: 可选附件(如导出的 CSV)，不存在时忽略
func BuildReport(c *config.Config, subject string, lines []string, attachmentPath string) (*email.Email, error) {
	if len(c.ETL.ReportTo) == 0 {
		return nil, fmt.Errorf("未配置报告收件人")
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("Congestion ETL <%s>", c.SendEmail.Username)
	e.To = append([]string(nil), c.ETL.ReportTo...)
	e.Subject = subject
	e.Text = []byte(strings.Join(lines, "\n") + "\n")

	if attachmentPath != "" {
		if _, err := os.Stat(attachmentPath); err == nil {
			if _, err := e.AttachFile(attachmentPath); err != nil {
				return nil, fmt.Errorf("附件添加失败: %w", err)
			}
		}
	}
	return e, nil
}

// SendReport 构建并发送校验报告
func SendReport(c *config.Config, subject string, lines []string, attachmentPath string, send ReportSender) error {
	e, err := BuildReport(c, subject, lines, attachmentPath)
	if err != nil {
		return err
	}
	if send == nil {
		send = sendWithTLS
	}

	// 确保服务器地址包含端口
	smtpAddr := c.SendEmail.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465" // 默认 SSL 端口
	}
	host := strings.Split(smtpAddr, ":")[0]

	err = send(e, smtpAddr,
		smtp.PlainAuth("", c.SendEmail.Username, c.SendEmail.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, smtpAddr)
	}
	return nil
}
